package spanstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/spanstore/internal/store"
)

// Config configures a Store or Client.
type Config struct {
	// Path is the path to the SQLite database file.
	// If empty, Path is derived from Store.
	Path string `yaml:"path"`

	// Store is the store ID to operate against.
	// If empty, resolved using store resolution (explicit > SPANSTORE_STORE env > "default").
	Store string `yaml:"store"`

	// InMemory opens a private in-memory database. Path and Store are ignored.
	InMemory bool `yaml:"in_memory"`

	// DeleteIfMigrationNeeded destroys an existing file whose contents
	// this build cannot read instead of failing Open.
	DeleteIfMigrationNeeded bool `yaml:"delete_if_migration_needed"`

	// BackupOnReset copies the file aside before a destructive reset.
	BackupOnReset bool `yaml:"backup_on_reset"`

	// DisableFileWatch turns off invalidation detection for the backing file.
	DisableFileWatch bool `yaml:"disable_file_watch"`

	// Debug enables verbose logging of store operations.
	Debug bool `yaml:"debug"`

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string `yaml:"debug_log_path"`
}

// DefaultConfig returns a Config with sensible defaults.
// Store defaults to "default", and Path is derived from Store.
func DefaultConfig() Config {
	return Config{
		Store: store.DefaultStoreID,
		Path:  store.StoreDBPath(store.DefaultStoreID),
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	SPANSTORE_DB_PATH             → Path
//	SPANSTORE_STORE               → Store
//	SPANSTORE_RESET_INCOMPATIBLE  → DeleteIfMigrationNeeded (any non-empty value enables)
//	SPANSTORE_DEBUG               → Debug (any non-empty value enables)
//	SPANSTORE_DEBUG_LOG           → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		Path:                    os.Getenv("SPANSTORE_DB_PATH"),
		Store:                   os.Getenv("SPANSTORE_STORE"),
		DeleteIfMigrationNeeded: os.Getenv("SPANSTORE_RESET_INCOMPATIBLE") != "",
		Debug:                   os.Getenv("SPANSTORE_DEBUG") != "",
		DebugLogPath:            os.Getenv("SPANSTORE_DEBUG_LOG"),
	}
}

// LoadConfigFile reads a YAML config file. Unknown keys are rejected.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, &ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	return cfg, nil
}

// Merge overlays the set fields of over onto c. Booleans only ever turn on.
func (c Config) Merge(over Config) Config {
	if over.Path != "" {
		c.Path = over.Path
	}
	if over.Store != "" {
		c.Store = over.Store
	}
	if over.DebugLogPath != "" {
		c.DebugLogPath = over.DebugLogPath
	}
	c.InMemory = c.InMemory || over.InMemory
	c.DeleteIfMigrationNeeded = c.DeleteIfMigrationNeeded || over.DeleteIfMigrationNeeded
	c.BackupOnReset = c.BackupOnReset || over.BackupOnReset
	c.DisableFileWatch = c.DisableFileWatch || over.DisableFileWatch
	c.Debug = c.Debug || over.Debug
	return c
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.InMemory {
		if c.BackupOnReset {
			return &ValidationError{Field: "BackupOnReset", Message: "not supported for in-memory stores"}
		}
		return nil
	}

	if c.Path == "" {
		return &ValidationError{Field: "Path", Message: "required: path to SQLite database"}
	}

	if c.Store != "" {
		if err := store.ValidateStoreID(c.Store); err != nil {
			return &ValidationError{Field: "Store", Message: err.Error()}
		}
	}

	if c.BackupOnReset && !c.DeleteIfMigrationNeeded {
		return &ValidationError{Field: "BackupOnReset", Message: "requires DeleteIfMigrationNeeded"}
	}

	return nil
}

// WithDefaults fills in default values for unset fields.
// Store resolution: explicit Store field > SPANSTORE_STORE env > "default".
// Path is derived from the resolved Store if not explicitly set.
func (c Config) WithDefaults() Config {
	if c.InMemory {
		return c
	}

	if c.Store == "" {
		resolved, err := store.ResolveStore("")
		if err == nil {
			c.Store = resolved
		} else {
			c.Store = store.DefaultStoreID
		}
	}

	if c.Path == "" {
		c.Path = store.StoreDBPath(c.Store)
	}

	return c
}
