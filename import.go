package spanstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ImportJSON imports records from a JSON export in a single transaction,
// so subscribers see the whole import as one change. With dryRun nothing
// is written and the result previews what would happen.
//
// The write lock is held for the whole import; other writers wait.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	if _, err := ParseMergeStrategy(string(strategy)); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err := s.Write(ctx, func(tx *Tx) error {
		return importStream(ctx, json.NewDecoder(r), tx, strategy, dryRun, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func importStream(ctx context.Context, dec *json.Decoder, tx *Tx, strategy MergeStrategy, dryRun bool, result *ImportResult) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected opening brace, got %v", token)
	}

	var version string
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		token, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read field name: %w", err)
		}
		fieldName, ok := token.(string)
		if !ok {
			return fmt.Errorf("expected field name, got %v", token)
		}

		switch fieldName {
		case "version":
			if err := dec.Decode(&version); err != nil {
				return fmt.Errorf("decode version: %w", err)
			}
			if version != ExportVersion {
				return fmt.Errorf("unsupported export version %q (expected %q)", version, ExportVersion)
			}

		case "records":
			if version == "" {
				return errors.New("records before version field in export file")
			}
			if err := importRecords(ctx, dec, tx, strategy, dryRun, result); err != nil {
				return fmt.Errorf("import records: %w", err)
			}

		default:
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return fmt.Errorf("decode %s: %w", fieldName, err)
			}
		}
	}

	if version == "" {
		return errors.New("missing version field in export file")
	}
	return nil
}

func importRecords(ctx context.Context, dec *json.Decoder, tx *Tx, strategy MergeStrategy, dryRun bool, result *ImportResult) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read records array start: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected records array, got %v", token)
	}

	// A dry run writes nothing, so IDs it would have created are tracked
	// here to classify repeats the way a real run does.
	staged := make(map[string]bool)

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var rec Record
		if err := dec.Decode(&rec); err != nil {
			// The decoder cannot resynchronize after malformed JSON.
			return fmt.Errorf("decode record %d: %w", result.Total, err)
		}
		result.Total++

		if rec.ID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: missing id", result.Total-1))
			continue
		}

		_, err := tx.Get(rec.ID)
		exists := err == nil || staged[rec.ID]
		if err != nil && !errors.Is(err, ErrNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("check existence %s: %v", rec.ID, err))
			continue
		}

		switch {
		case exists && strategy == MergeStrategySkip:
			result.Skipped++
		case exists:
			if !dryRun {
				if _, err := tx.Update(rec); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("replace %s: %v", rec.ID, err))
					continue
				}
			}
			result.Replaced++
		default:
			if dryRun {
				staged[rec.ID] = true
			} else if _, err := tx.Insert(rec); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("insert %s: %v", rec.ID, err))
				continue
			}
			result.Created++
		}
	}

	token, err = dec.Token()
	if err != nil {
		return fmt.Errorf("read records array end: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != ']' {
		return fmt.Errorf("expected records array end, got %v", token)
	}
	return nil
}
