package spanstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"
)

// Filters maps an indexed scalar field to the value it must equal.
// Supported fields are "id" (string) and "account_id" (any integer type).
type Filters map[string]any

// Query describes a set of records. The zero Query matches everything.
type Query struct {
	Mode    QueryMode
	Lower   time.Time
	Upper   time.Time
	Filters Filters
}

// OverlapQuery matches records where ended_at >= lower AND started_at <= upper.
func OverlapQuery(lower, upper time.Time, filters Filters) Query {
	return Query{Mode: ModeOverlap, Lower: lower, Upper: upper, Filters: filters}
}

// ContainmentQuery matches records where started_at >= lower AND ended_at <= upper.
func ContainmentQuery(lower, upper time.Time, filters Filters) Query {
	return Query{Mode: ModeContainment, Lower: lower, Upper: upper, Filters: filters}
}

// compile validates the query and normalizes bounds and filter values.
func (q Query) compile() (Query, error) {
	switch q.Mode {
	case ModeAll, ModeOverlap, ModeContainment:
	default:
		return q, fmt.Errorf("query: unknown mode %d", q.Mode)
	}
	q.Lower = normalizeTime(q.Lower)
	q.Upper = normalizeTime(q.Upper)

	if len(q.Filters) == 0 {
		q.Filters = nil
		return q, nil
	}
	filters := make(Filters, len(q.Filters))
	for field, v := range q.Filters {
		norm, err := normalizeFilter(field, v)
		if err != nil {
			return q, err
		}
		filters[field] = norm
	}
	q.Filters = filters
	return q, nil
}

func normalizeFilter(field string, v any) (any, error) {
	switch field {
	case FieldID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants a string, got %T", ErrInvalidFilter, field, v)
		}
		return s, nil
	case FieldAccountID:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			// JSON numbers decode as float64.
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("%w: %s wants an integer, got %v", ErrInvalidFilter, field, n)
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("%w: %s wants an integer, got %T", ErrInvalidFilter, field, v)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// sortedFields returns filter keys in a stable order.
func (q Query) sortedFields() []string {
	fields := make([]string, 0, len(q.Filters))
	for f := range q.Filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// where renders the SQL predicate and its arguments. The query must be compiled.
func (q Query) where() (string, []any) {
	clause := "1=1"
	var args []any

	switch q.Mode {
	case ModeOverlap:
		clause += " AND ended_at >= ? AND started_at <= ?"
		args = append(args, q.Lower.UnixMicro(), q.Upper.UnixMicro())
	case ModeContainment:
		clause += " AND started_at >= ? AND ended_at <= ?"
		args = append(args, q.Lower.UnixMicro(), q.Upper.UnixMicro())
	}

	// Field names come from the normalizeFilter allow-list.
	for _, field := range q.sortedFields() {
		clause += fmt.Sprintf(" AND %s = ?", field)
		args = append(args, q.Filters[field])
	}
	return clause, args
}

// Matches reports whether r belongs to the query's result set. It agrees
// with the SQL predicate for normalized records and compiled queries.
func (q Query) Matches(r Record) bool {
	start, end := r.StartedAt.UnixMicro(), r.EndedAt.UnixMicro()
	lo, hi := q.Lower.UnixMicro(), q.Upper.UnixMicro()

	switch q.Mode {
	case ModeOverlap:
		if end < lo || start > hi {
			return false
		}
	case ModeContainment:
		if start < lo || end > hi {
			return false
		}
	}

	for field, want := range q.Filters {
		switch field {
		case FieldID:
			if r.ID != want {
				return false
			}
		case FieldAccountID:
			if r.AccountID == nil || *r.AccountID != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Mode.String())
	if q.Mode != ModeAll {
		fmt.Fprintf(&b, "[%s, %s]", q.Lower.Format(time.RFC3339), q.Upper.Format(time.RFC3339))
	}
	for _, field := range q.sortedFields() {
		fmt.Fprintf(&b, " %s=%v", field, q.Filters[field])
	}
	return b.String()
}

// Results is a lazily evaluated query result. Nothing is read from the
// store until one of its methods is called, and every call sees the
// latest committed state.
type Results struct {
	store *Store
	query Query
}

// Query returns the query the results are bound to.
func (r *Results) Query() Query {
	return r.query
}

// Count returns the number of matching records.
func (r *Results) Count(ctx context.Context) (int, error) {
	if err := r.store.checkOpen(); err != nil {
		return 0, err
	}
	where, args := r.query.where()
	var n int
	if err := r.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// First returns the earliest inserted matching record. The boolean is
// false when there are no matches.
func (r *Results) First(ctx context.Context) (*Record, bool, error) {
	if err := r.store.checkOpen(); err != nil {
		return nil, false, err
	}
	where, args := r.query.where()
	row := r.store.db.QueryRowContext(ctx, selectRecord+" WHERE "+where+" ORDER BY rowid LIMIT 1", args...)
	rec, _, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// All returns every matching record in insertion order.
// Returns an empty slice (not nil) when nothing matches.
func (r *Results) All(ctx context.Context) ([]Record, error) {
	records := []Record{}
	for rec, err := range r.Records(ctx) {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Records streams matching records in insertion order. The iteration
// holds a read connection; on an in-memory store, do not write from the
// loop body.
func (r *Results) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if err := r.store.checkOpen(); err != nil {
			yield(Record{}, err)
			return
		}
		where, args := r.query.where()
		rows, err := r.store.db.QueryContext(ctx, selectRecord+" WHERE "+where+" ORDER BY rowid", args...)
		if err != nil {
			yield(Record{}, fmt.Errorf("query records: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, _, err := scanRecord(rows)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(*rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, fmt.Errorf("iterate records: %w", err))
		}
	}
}
