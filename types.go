package spanstore

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is a single stored entity with an indexed time span.
type Record struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Title     string    `json:"title,omitempty"`
	AccountID *int64    `json:"account_id,omitempty"`
	Embedded  *Embedded `json:"embedded,omitempty"`
}

// Embedded is a value owned by exactly one Record. It is stored inline
// with its parent and has no identity of its own.
type Embedded struct {
	Notes  string `json:"notes,omitempty"`
	Field1 int64  `json:"field1,omitempty"`
	Field2 string `json:"field2,omitempty"`
}

// Field names usable in Filters and subscription key paths.
const (
	FieldID             = "id"
	FieldStartedAt      = "started_at"
	FieldEndedAt        = "ended_at"
	FieldTitle          = "title"
	FieldAccountID      = "account_id"
	FieldEmbedded       = "embedded"
	FieldEmbeddedNotes  = "embedded.notes"
	FieldEmbeddedField1 = "embedded.field1"
	FieldEmbeddedField2 = "embedded.field2"
)

// RecordOption sets an optional Record field at construction.
type RecordOption func(*Record)

// WithTitle sets the record title.
func WithTitle(title string) RecordOption {
	return func(r *Record) { r.Title = title }
}

// WithAccountID sets the indexed account ID.
func WithAccountID(id int64) RecordOption {
	return func(r *Record) { r.AccountID = &id }
}

// WithEmbedded attaches an embedded sub-record. The value is copied.
func WithEmbedded(e Embedded) RecordOption {
	return func(r *Record) { r.Embedded = &e }
}

// NewRecord builds a Record with a fresh ID. Field values are not
// validated; startedAt may be after endedAt.
func NewRecord(startedAt, endedAt time.Time, opts ...RecordOption) Record {
	r := Record{
		ID:        NewID(),
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// NewID returns a new record ID.
func NewID() string {
	return ulid.Make().String()
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r.AccountID != nil {
		id := *r.AccountID
		r.AccountID = &id
	}
	if r.Embedded != nil {
		e := *r.Embedded
		r.Embedded = &e
	}
	return r
}

// normalized returns the record as it is persisted: times in UTC,
// truncated to microseconds.
func (r Record) normalized() Record {
	r = r.Clone()
	r.StartedAt = normalizeTime(r.StartedAt)
	r.EndedAt = normalizeTime(r.EndedAt)
	return r
}

func normalizeTime(t time.Time) time.Time {
	return time.UnixMicro(t.UnixMicro()).UTC()
}

// changedFields lists the fields that differ between two versions of a record.
func changedFields(prev, curr Record) []string {
	var fields []string
	if !prev.StartedAt.Equal(curr.StartedAt) {
		fields = append(fields, FieldStartedAt)
	}
	if !prev.EndedAt.Equal(curr.EndedAt) {
		fields = append(fields, FieldEndedAt)
	}
	if prev.Title != curr.Title {
		fields = append(fields, FieldTitle)
	}
	if !equalAccount(prev.AccountID, curr.AccountID) {
		fields = append(fields, FieldAccountID)
	}

	var pe, ce Embedded
	if prev.Embedded != nil {
		pe = *prev.Embedded
	}
	if curr.Embedded != nil {
		ce = *curr.Embedded
	}
	if (prev.Embedded == nil) != (curr.Embedded == nil) {
		fields = append(fields, FieldEmbedded)
	}
	if pe.Notes != ce.Notes {
		fields = append(fields, FieldEmbeddedNotes)
	}
	if pe.Field1 != ce.Field1 {
		fields = append(fields, FieldEmbeddedField1)
	}
	if pe.Field2 != ce.Field2 {
		fields = append(fields, FieldEmbeddedField2)
	}
	return fields
}

func equalAccount(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ChangeKind classifies a change feed event.
type ChangeKind int

const (
	ChangeInitial ChangeKind = iota
	ChangeUpdate
	ChangeError
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInitial:
		return "initial"
	case ChangeUpdate:
		return "update"
	case ChangeError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON output.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Change is one event delivered to a subscription.
//
// For ChangeInitial, Count is the number of matching records when the
// subscription was registered. For ChangeUpdate, Count is the size of the
// observed set after the transaction; Deleted holds indices into the
// previous set, Inserted and Modified hold indices into the new one.
// ChangeError carries an *ObservationError and is always the last event.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	Count    int        `json:"count"`
	Deleted  []int      `json:"deleted,omitempty"`
	Inserted []int      `json:"inserted,omitempty"`
	Modified []int      `json:"modified,omitempty"`
	Err      error      `json:"-"`
}

// StoreStats contains statistics about the store.
type StoreStats struct {
	Path          string    `json:"path"`
	RecordCount   int       `json:"record_count"`
	Subscriptions int       `json:"subscriptions"`
	Commits       uint64    `json:"commits"`
	SchemaVersion string    `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

// HealthStatus represents the health of the client.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	StoreOK bool   `json:"store_ok"`
	Error   string `json:"error,omitempty"`
}

// LoadParams configures LoadData.
type LoadParams struct {
	// Count is the number of records to create. Defaults to 2001.
	Count int `json:"count"`
	// Base is the start time of the first record. Defaults to now.
	Base time.Time `json:"base,omitempty"`
	// Spacing separates consecutive start times. Defaults to 2000s.
	Spacing time.Duration `json:"spacing"`
	// Duration is EndedAt - StartedAt for every record. Defaults to 0.
	Duration time.Duration `json:"duration"`
	// AccountEvery gives every n-th record account_id = LoadAccountID. 0 disables.
	AccountEvery int `json:"account_every,omitempty"`
	// Batch writes all records in one transaction instead of one per record.
	Batch bool `json:"batch,omitempty"`
}

// LoadAccountID is the account assigned by LoadData.
const LoadAccountID int64 = 2

// LoadResult summarizes a LoadData run.
type LoadResult struct {
	Inserted     int           `json:"inserted"`
	Transactions int           `json:"transactions"`
	Elapsed      time.Duration `json:"elapsed"`
}

// QueryMode selects how a range query compares record spans to its bounds.
type QueryMode int

const (
	// ModeAll matches every record; bounds are ignored.
	ModeAll QueryMode = iota
	// ModeOverlap matches records whose span intersects [Lower, Upper].
	ModeOverlap
	// ModeContainment matches records whose span lies within [Lower, Upper].
	ModeContainment
)

func (m QueryMode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeOverlap:
		return "overlap"
	case ModeContainment:
		return "containment"
	default:
		return "unknown"
	}
}

// ParseQueryMode converts a mode name back to a QueryMode.
func ParseQueryMode(s string) (QueryMode, bool) {
	switch s {
	case "all", "":
		return ModeAll, true
	case "overlap":
		return ModeOverlap, true
	case "containment":
		return ModeContainment, true
	}
	return ModeAll, false
}

// SweepParams configures RunQueries. Query i, counting from 1, covers
// [Base + i*Step, Base + i*Step + Window].
type SweepParams struct {
	Count   int           `json:"count"`
	Base    time.Time     `json:"base,omitempty"`
	Step    time.Duration `json:"step"`
	Window  time.Duration `json:"window"`
	Mode    QueryMode     `json:"mode"`
	Filters Filters       `json:"filters,omitempty"`
}

// SweepResult summarizes a RunQueries run.
type SweepResult struct {
	Queries int           `json:"queries"`
	Hits    int           `json:"hits"`
	Misses  int           `json:"misses"`
	Matched int           `json:"matched"`
	First   *Record       `json:"first,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// ObserverInfo describes an observer tracked by a Session.
type ObserverInfo struct {
	Ref      string   `json:"ref"`
	Query    string   `json:"query"`
	KeyPaths []string `json:"key_paths,omitempty"`
	Received int      `json:"received"`
	Pending  int      `json:"pending"`
	Active   bool     `json:"active"`
	Error    string   `json:"error,omitempty"`
}
