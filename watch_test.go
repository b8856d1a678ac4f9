package spanstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openWatched(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if s.watcher == nil {
		t.Fatal("file watcher not started")
	}
	return s, path
}

func TestWatch_RemovedFileEndsSubscriptions(t *testing.T) {
	s, path := openWatched(t)
	mustInsert(t, s, spanRecord(0, 1))

	sub, err := s.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	nextChange(t, sub)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	c := nextChange(t, sub)
	if c.Kind != ChangeError || !errors.Is(c.Err, ErrStoreInvalidated) {
		t.Fatalf("event = %+v, want invalidation error", c)
	}
	expectClosed(t, sub)
	sub.Unsubscribe()
}

func TestWatch_RenamedFileEndsSubscriptions(t *testing.T) {
	s, path := openWatched(t)

	sub, err := s.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	nextChange(t, sub)

	if err := os.Rename(path, path+".moved"); err != nil {
		t.Fatal(err)
	}

	c := nextChange(t, sub)
	if c.Kind != ChangeError || !errors.Is(c.Err, ErrObservation) {
		t.Fatalf("event = %+v, want observation error", c)
	}
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	s, path := openWatched(t)

	sub, err := s.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	nextChange(t, sub)

	sibling := filepath.Join(filepath.Dir(path), "other.db")
	if err := os.WriteFile(sibling, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(sibling); err != nil {
		t.Fatal(err)
	}
	expectNoChange(t, sub)
}

func TestWatch_Disabled(t *testing.T) {
	s := newTestStore(t)
	if s.watcher != nil {
		t.Error("watcher started with DisableFileWatch")
	}

	mem, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Close()
	if mem.watcher != nil {
		t.Error("watcher started for in-memory store")
	}
}
