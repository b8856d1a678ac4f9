package spanstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hyperengineering/spanstore/internal/store"
	"github.com/hyperengineering/spanstore/internal/store/migrations"
)

const (
	// schemaName identifies databases created by this package.
	schemaName = "spanstore"

	// schemaVersion is the highest goose migration version this build knows.
	schemaVersion int64 = 2
)

// SupportedSchemaVersion is the newest schema this build can open.
func SupportedSchemaVersion() int64 { return schemaVersion }

// dsnPragmas are applied to every pooled connection of a file-backed store.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

const selectRecord = "SELECT rowid, id, started_at, ended_at, title, account_id, embedded FROM records"

// goose keeps its dialect, base FS and logger in package globals.
var gooseMu sync.Mutex

// Store is an embedded record store backed by SQLite. All methods are
// safe for concurrent use. Writes are serialized; readers see the latest
// committed state.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string

	// writeMu serializes write transactions and change publication.
	writeMu sync.Mutex
	feed    *feed
	watcher *fileWatcher
	commits atomic.Uint64

	debug *DebugLogger
}

// NewStore opens or creates a store at path with default options.
// Incompatible existing data makes it fail with ErrMigrationRequired.
func NewStore(path string) (*Store, error) {
	return Open(Config{Path: path})
}

// Open opens or creates the store described by cfg. Failures to use the
// backing location are returned as *ConfigError.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: cfg.Path, Err: err}
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, &ConfigError{Path: cfg.DebugLogPath, Err: err}
	}

	var db *sql.DB
	if cfg.InMemory {
		db, err = openMemoryDB()
	} else {
		db, err = openFileDB(cfg, debug)
	}
	if err != nil {
		_ = debug.Close()
		return nil, err
	}

	if err := migrate(db, debug); err != nil {
		db.Close()
		_ = debug.Close()
		return nil, &ConfigError{Path: cfg.Path, Err: err}
	}

	s := &Store{
		db:    db,
		path:  cfg.Path,
		feed:  newFeed(debug),
		debug: debug,
	}
	if cfg.InMemory {
		s.path = ":memory:"
	}

	if !cfg.InMemory && !cfg.DisableFileWatch {
		w, err := watchFile(cfg.Path, s.feed.fail, debug)
		if err != nil {
			// The store is usable without invalidation events.
			debug.LogError("watch backing file", err)
		} else {
			s.watcher = w
		}
	}

	debug.Log("opened store %s", s.path)
	return s, nil
}

func openMemoryDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, &ConfigError{Path: ":memory:", Err: err}
	}
	// Each connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return db, nil
}

// openFileDB opens the database file, resetting it first when its
// contents are incompatible and the config allows it.
func openFileDB(cfg Config, debug *DebugLogger) (*sql.DB, error) {
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("create store directory: %w", err)}
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil, &ConfigError{Path: path, Err: errors.New("path is a directory")}
	}

	db, reason, err := openAndInspect(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if reason == "" {
		return db, nil
	}
	closeDB(db)

	if !cfg.DeleteIfMigrationNeeded {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("%w: %s", ErrMigrationRequired, reason)}
	}

	if cfg.BackupOnReset {
		backup := store.BackupPath(path, time.Now())
		if err := store.BackupDatabase(path, backup); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		debug.Log("backed up incompatible store to %s", backup)
	}
	if err := store.ResetDatabase(path); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("reset: %w", err)}
	}
	debug.Log("reset incompatible store %s: %s", path, reason)

	db, reason, err = openAndInspect(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if reason != "" {
		closeDB(db)
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("%w: %s after reset", ErrMigrationRequired, reason)}
	}
	return db, nil
}

// closeDB closes a database returned by openAndInspect, which is nil for
// files that are not databases.
func closeDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}

// openAndInspect opens path and reports why its contents cannot be used,
// or "" when they can. A nil db with a reason means the file is not a
// database at all.
func openAndInspect(path string) (*sql.DB, string, error) {
	db, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		if isNotADB(err) {
			return nil, "not a database", nil
		}
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	reason, err := inspectSchema(db)
	if err != nil {
		db.Close()
		if isNotADB(err) {
			return nil, "not a database", nil
		}
		return nil, "", fmt.Errorf("inspect schema: %w", err)
	}
	return db, reason, nil
}

// inspectSchema decides whether an existing database was written by a
// compatible build. An empty database is compatible.
func inspectSchema(db *sql.DB) (string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return "", err
	}
	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return "", err
		}
		tables[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(tables) == 0 {
		return "", nil
	}
	if !tables["metadata"] {
		return "foreign database: no metadata table", nil
	}

	var name string
	err = db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_name'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "foreign database: no schema name", nil
	}
	if err != nil {
		return "foreign database: " + err.Error(), nil
	}
	if name != schemaName {
		return fmt.Sprintf("schema %q is not %q", name, schemaName), nil
	}

	if tables["goose_db_version"] {
		var v sql.NullInt64
		if err := db.QueryRow(`SELECT MAX(version_id) FROM goose_db_version WHERE is_applied = 1`).Scan(&v); err != nil {
			return "", err
		}
		if v.Valid && v.Int64 > schemaVersion {
			return fmt.Sprintf("schema version %d is newer than %d", v.Int64, schemaVersion), nil
		}
	}
	return "", nil
}

func migrate(db *sql.DB, debug *DebugLogger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{debug})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// Path returns the backing file path, or ":memory:".
func (s *Store) Path() string {
	return s.path
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Insert stores a single record in its own transaction. An empty ID is
// replaced with a fresh one. Returns the record as persisted.
func (s *Store) Insert(ctx context.Context, r Record) (*Record, error) {
	var out *Record
	err := s.Write(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Insert(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertMany inserts records one transaction per record, so each insert
// produces its own change event. It stops at the first failure and
// returns how many records were committed before it.
func (s *Store) InsertMany(ctx context.Context, records []Record) (int, error) {
	for i, r := range records {
		if _, err := s.Insert(ctx, r); err != nil {
			return i, fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return len(records), nil
}

// InsertBatch inserts all records in a single transaction. Either every
// record is committed or none is.
func (s *Store) InsertBatch(ctx context.Context, records []Record) (int, error) {
	err := s.Write(ctx, func(tx *Tx) error {
		for _, r := range records {
			if _, err := tx.Insert(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Update replaces the stored record with the same ID.
func (s *Store) Update(ctx context.Context, r Record) (*Record, error) {
	var out *Record
	err := s.Write(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Update(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteAll removes every record in one transaction and returns how many
// were removed.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	var n int
	err := s.Write(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.DeleteAll()
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Get retrieves a record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rec, _, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.Objects().Count(ctx)
}

// Objects returns all records, in insertion order.
func (s *Store) Objects() *Results {
	return &Results{store: s, query: Query{}}
}

// Where returns the records matching q.
func (s *Store) Where(q Query) (*Results, error) {
	compiled, err := q.compile()
	if err != nil {
		return nil, err
	}
	return &Results{store: s, query: compiled}, nil
}

// QueryOverlap returns records whose span intersects [lower, upper]:
// ended_at >= lower AND started_at <= upper.
func (s *Store) QueryOverlap(lower, upper time.Time, filters Filters) (*Results, error) {
	return s.Where(OverlapQuery(lower, upper, filters))
}

// QueryContainment returns records whose span lies within [lower, upper]:
// started_at >= lower AND ended_at <= upper.
func (s *Store) QueryContainment(lower, upper time.Time, filters Filters) (*Results, error) {
	return s.Where(ContainmentQuery(lower, upper, filters))
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version_id) FROM goose_db_version WHERE is_applied = 1").Scan(&version); err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}

	stats := &StoreStats{
		Path:          s.path,
		RecordCount:   count,
		Subscriptions: s.feed.size(),
		Commits:       s.commits.Load(),
		SchemaVersion: strconv.FormatInt(version.Int64, 10),
	}
	if created, err := s.GetMetadata(ctx, "created_at"); err == nil {
		stats.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}
	return stats, nil
}

// GetMetadata returns a metadata value. Returns ErrNotFound if unset.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata sets a metadata value. The schema_name key is reserved.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	if key == "schema_name" {
		return fmt.Errorf("set metadata: %q is reserved", key)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// Close closes the store. Open subscriptions receive their pending events
// and then their channels close. Safe to call more than once.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
	}
	s.feed.closeAll()

	err := s.db.Close()
	s.debug.Log("closed store %s", s.path)
	_ = s.debug.Close()
	return err
}

// scanner abstracts the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads a row selected with selectRecord and returns the record
// and its rowid. sql.ErrNoRows is returned unwrapped.
func scanRecord(sc scanner) (*Record, int64, error) {
	var (
		rec      Record
		rowid    int64
		started  int64
		ended    int64
		account  sql.NullInt64
		embedded sql.NullString
	)
	err := sc.Scan(&rowid, &rec.ID, &started, &ended, &rec.Title, &account, &embedded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, sql.ErrNoRows
	}
	if err != nil {
		return nil, 0, fmt.Errorf("scan record: %w", err)
	}

	rec.StartedAt = time.UnixMicro(started).UTC()
	rec.EndedAt = time.UnixMicro(ended).UTC()
	if account.Valid {
		id := account.Int64
		rec.AccountID = &id
	}
	if embedded.Valid && embedded.String != "" {
		var e Embedded
		if err := json.Unmarshal([]byte(embedded.String), &e); err != nil {
			return nil, 0, fmt.Errorf("decode embedded of %s: %w", rec.ID, err)
		}
		rec.Embedded = &e
	}
	return &rec, rowid, nil
}

// encodeEmbedded renders the embedded column value; nil stays NULL.
func encodeEmbedded(e *Embedded) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode embedded: %w", err)
	}
	return string(b), nil
}

func nullAccount(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// isConstraint reports a primary key or other constraint failure.
// Extended result codes keep the primary code in the low byte.
func isConstraint(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code&0xff == sqlite3.SQLITE_CONSTRAINT
}

func isNotADB(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code&0xff == sqlite3.SQLITE_NOTADB
}
