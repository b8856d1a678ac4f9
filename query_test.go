package spanstore

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestQueryCompile_NormalizesFilters(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int", 2, 2},
		{"int32", int32(2), 2},
		{"int64", int64(2), 2},
		{"json number", float64(2), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Query{Filters: Filters{FieldAccountID: tt.value}}.compile()
			if err != nil {
				t.Fatalf("compile failed: %v", err)
			}
			if got := q.Filters[FieldAccountID]; got != tt.want {
				t.Errorf("account_id = %v (%T), want int64 %d", got, got, tt.want)
			}
		})
	}
}

func TestQueryCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want error
	}{
		{"unknown mode", Query{Mode: QueryMode(9)}, nil},
		{"unknown field", Query{Filters: Filters{"nope": 1}}, ErrUnknownField},
		{"embedded field", Query{Filters: Filters{FieldEmbeddedNotes: "x"}}, ErrUnknownField},
		{"bad account", Query{Filters: Filters{FieldAccountID: true}}, ErrInvalidFilter},
		{"bad id", Query{Filters: Filters{FieldID: []byte("x")}}, ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.q.compile()
			if err == nil {
				t.Fatal("compile succeeded, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestQueryCompile_EmptyFiltersAreNil(t *testing.T) {
	q, err := Query{Filters: Filters{}}.compile()
	if err != nil {
		t.Fatal(err)
	}
	if q.Filters != nil {
		t.Errorf("Filters = %v, want nil", q.Filters)
	}
}

func TestQueryMatches(t *testing.T) {
	acct := func(id int64) *int64 { return &id }
	rec := func(start, end int, account *int64) Record {
		return Record{ID: "r", StartedAt: at(start), EndedAt: at(end), AccountID: account}
	}

	tests := []struct {
		name string
		q    Query
		r    Record
		want bool
	}{
		{"all", Query{}, rec(0, 1, nil), true},
		{"overlap inside", OverlapQuery(at(0), at(10), nil), rec(2, 3, nil), true},
		{"overlap straddles lower", OverlapQuery(at(5), at(10), nil), rec(0, 6, nil), true},
		{"overlap touches lower", OverlapQuery(at(5), at(10), nil), rec(0, 5, nil), true},
		{"overlap touches upper", OverlapQuery(at(5), at(10), nil), rec(10, 20, nil), true},
		{"overlap before", OverlapQuery(at(5), at(10), nil), rec(0, 4, nil), false},
		{"overlap after", OverlapQuery(at(5), at(10), nil), rec(11, 20, nil), false},
		{"overlap covers window", OverlapQuery(at(5), at(10), nil), rec(0, 20, nil), true},
		{"containment inside", ContainmentQuery(at(0), at(10), nil), rec(0, 10, nil), true},
		{"containment straddles", ContainmentQuery(at(5), at(10), nil), rec(0, 6, nil), false},
		{"containment covers window", ContainmentQuery(at(5), at(10), nil), rec(0, 20, nil), false},
		{"account match", Query{Filters: Filters{FieldAccountID: int64(2)}}, rec(0, 1, acct(2)), true},
		{"account mismatch", Query{Filters: Filters{FieldAccountID: int64(2)}}, rec(0, 1, acct(3)), false},
		{"account missing", Query{Filters: Filters{FieldAccountID: int64(2)}}, rec(0, 1, nil), false},
		{"id match", Query{Filters: Filters{FieldID: "r"}}, rec(0, 1, nil), true},
		{"id mismatch", Query{Filters: Filters{FieldID: "s"}}, rec(0, 1, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(tt.r); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryWhere(t *testing.T) {
	q, err := ContainmentQuery(at(0), at(10), Filters{FieldID: "x", FieldAccountID: 2}).compile()
	if err != nil {
		t.Fatal(err)
	}
	clause, args := q.where()

	want := "1=1 AND started_at >= ? AND ended_at <= ? AND account_id = ? AND id = ?"
	if clause != want {
		t.Errorf("where = %q, want %q", clause, want)
	}
	if len(args) != 4 || args[0] != at(0).UnixMicro() || args[2] != int64(2) || args[3] != "x" {
		t.Errorf("args = %v", args)
	}
}

func TestQueryString(t *testing.T) {
	q := OverlapQuery(at(0), at(60), Filters{FieldAccountID: 2})
	s := q.String()
	for _, part := range []string{"overlap", "2024-01-01T00:00:00Z", "2024-01-01T00:01:00Z", "account_id=2"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
	if got := (Query{}).String(); got != "all" {
		t.Errorf("zero query String() = %q, want all", got)
	}
}

func TestQueryCompile_NormalizesBounds(t *testing.T) {
	lower := time.Date(2024, 1, 1, 1, 0, 0, 999, time.FixedZone("X", 3600))
	q, err := OverlapQuery(lower, lower, nil).compile()
	if err != nil {
		t.Fatal(err)
	}
	if q.Lower.Location() != time.UTC || q.Lower.Nanosecond() != 0 || !q.Lower.Equal(testBase) {
		t.Errorf("Lower = %v, want %v", q.Lower, testBase)
	}
}
