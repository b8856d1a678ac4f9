package spanstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestStore opens a file-backed store in a temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "records.db"), DisableFileWatch: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// at returns testBase shifted by the given number of seconds.
func at(seconds int) time.Time {
	return testBase.Add(time.Duration(seconds) * time.Second)
}

// spanRecord builds a record covering [start, end] seconds after testBase.
func spanRecord(start, end int, opts ...RecordOption) Record {
	return NewRecord(at(start), at(end), opts...)
}

func mustInsert(t *testing.T, s *Store, records ...Record) []Record {
	t.Helper()
	out := make([]Record, 0, len(records))
	for _, r := range records {
		rec, err := s.Insert(context.Background(), r)
		if err != nil {
			t.Fatalf("Insert(%s) failed: %v", r.ID, err)
		}
		out = append(out, *rec)
	}
	return out
}

func mustCount(t *testing.T, res *Results, err error) int {
	t.Helper()
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	n, err := res.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

// nextChange waits for the next event on sub.
func nextChange(t *testing.T, sub *Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		if !ok {
			t.Fatal("change channel closed, want an event")
		}
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

// expectNoChange asserts nothing is delivered for a short while.
func expectNoChange(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		if ok {
			t.Fatalf("unexpected change: %+v", c)
		}
		t.Fatal("change channel closed unexpectedly")
	case <-time.After(100 * time.Millisecond):
	}
}

// expectClosed waits for the change channel to close, discarding nothing.
func expectClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		if ok {
			t.Fatalf("got change %+v, want closed channel", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channel to close")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
