package store

import (
	"os"
	"path/filepath"
	"strings"
)

// DBFileName is the name of the record database inside a store directory.
const DBFileName = "records.db"

// DefaultStoreRoot returns the root directory for all stores.
// SPANSTORE_HOME overrides the base directory. Otherwise defaults to
// ~/.spanstore/stores, falling back to ./.spanstore/stores if the home
// directory is unavailable.
func DefaultStoreRoot() string {
	if base := os.Getenv("SPANSTORE_HOME"); base != "" {
		return filepath.Join(base, "stores")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".spanstore", "stores")
	}
	return filepath.Join(home, ".spanstore", "stores")
}

// EncodeStorePath encodes a store ID for filesystem use.
// Replaces "/" with "__" for path-style store IDs.
func EncodeStorePath(storeID string) string {
	return strings.ReplaceAll(storeID, "/", "__")
}

// DecodeStorePath decodes an encoded store path back to store ID.
func DecodeStorePath(encoded string) string {
	return strings.ReplaceAll(encoded, "__", "/")
}

// StoreDBPath returns the full path to a store's database file.
// Example: StoreDBPath("org/team") -> ~/.spanstore/stores/org__team/records.db
func StoreDBPath(storeID string) string {
	return filepath.Join(DefaultStoreRoot(), EncodeStorePath(storeID), DBFileName)
}
