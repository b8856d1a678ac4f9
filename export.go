package spanstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure for JSON exports.
type ExportFormat struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	StoreID    string         `json:"store_id"`
	Metadata   ExportMetadata `json:"metadata"`
	Records    []Record       `json:"records"`
}

// ExportMetadata contains store metadata in exports.
type ExportMetadata struct {
	SchemaVersion string    `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// MergeStrategy defines how to handle records that already exist during import.
type MergeStrategy string

const (
	// MergeStrategySkip keeps the stored record.
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyReplace overwrites the stored record with the imported one.
	MergeStrategyReplace MergeStrategy = "replace"
)

// ParseMergeStrategy validates a strategy name.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeStrategySkip, MergeStrategyReplace:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("invalid merge strategy %q: must be skip or replace", s)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Replaced int      `json:"replaced"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ExportJSON streams every record as JSON to w, in insertion order, without
// loading the store into memory.
func (s *Store) ExportJSON(ctx context.Context, storeID string, w io.Writer) error {
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}

	meta, err := json.Marshal(ExportMetadata{SchemaVersion: stats.SchemaVersion, CreatedAt: stats.CreatedAt})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	// Write opening structure manually for streaming
	header := fmt.Sprintf(`{"version":"%s","exported_at":"%s","store_id":%s,"metadata":%s,"records":[`,
		ExportVersion,
		time.Now().UTC().Format(time.RFC3339),
		jsonString(storeID),
		meta,
	)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc := json.NewEncoder(w)
	first := true
	for rec, err := range s.Objects().Records(ctx) {
		if err != nil {
			return fmt.Errorf("export records: %w", err)
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write separator: %w", err)
			}
		}
		first = false

		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}

	if _, err := io.WriteString(w, "]}"); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	return nil
}

// ExportSQLite writes a compacted copy of the database to destPath, which
// must not exist yet. The copy is a consistent snapshot taken between
// write transactions.
func (s *Store) ExportSQLite(ctx context.Context, destPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("export sqlite: %s already exists", destPath)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("export sqlite: %w", err)
	}
	return nil
}

// jsonString returns a JSON-encoded string.
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
