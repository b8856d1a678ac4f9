package spanstore

import (
	"context"
	"testing"
	"time"
)

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func trackN(t *testing.T, s *Store, sess *Session, n int) []string {
	t.Helper()
	refs := make([]string, n)
	for i := range refs {
		sub, err := s.Observe(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		refs[i] = sess.Track(sub)
	}
	return refs
}

func TestSession_TrackAndResolve(t *testing.T) {
	s := newTestStore(t)
	sess := NewSession()
	defer sess.Clear()

	refs := trackN(t, s, sess, 2)
	if refs[0] != "O1" || refs[1] != "O2" {
		t.Fatalf("refs = %v, want [O1 O2]", refs)
	}

	for _, in := range []string{"O2", "o2", "2", " 2 "} {
		o, ok := sess.Resolve(in)
		if !ok || o.Ref() != "O2" {
			t.Errorf("Resolve(%q) = %v, %v", in, o, ok)
		}
	}
	if _, ok := sess.Resolve("O3"); ok {
		t.Error("Resolve(O3) found an observer")
	}
}

func TestSession_RefsNumericOrder(t *testing.T) {
	s := newTestStore(t)
	sess := NewSession()
	defer sess.Clear()

	trackN(t, s, sess, 11)
	refs := sess.Refs()
	if len(refs) != 11 || refs[1] != "O2" || refs[10] != "O11" {
		t.Errorf("Refs = %v", refs)
	}
}

func TestSession_RemoveAndClear(t *testing.T) {
	s := newTestStore(t)
	sess := NewSession()

	trackN(t, s, sess, 3)
	o, ok := sess.Remove("o2")
	if !ok {
		t.Fatal("Remove(o2) found nothing")
	}
	o.Stop()
	if sess.Count() != 2 {
		t.Errorf("Count = %d, want 2", sess.Count())
	}
	if s.feed.size() != 2 {
		t.Errorf("feed size = %d, want 2", s.feed.size())
	}

	sess.Clear()
	if sess.Count() != 0 || s.feed.size() != 0 {
		t.Errorf("after Clear: %d observers, %d subscriptions", sess.Count(), s.feed.size())
	}
	refs := trackN(t, s, sess, 1)
	if refs[0] != "O1" {
		t.Errorf("ref after Clear = %s, want O1", refs[0])
	}
	sess.Clear()
}

func TestObserver_CollectsAndDrains(t *testing.T) {
	s := newTestStore(t)
	sess := NewSession()
	defer sess.Clear()

	ref := trackN(t, s, sess, 1)[0]
	o, _ := sess.Resolve(ref)
	mustInsert(t, s, spanRecord(0, 1))

	waitFor(t, "two events", func() bool { return o.Info().Received == 2 })

	info := o.Info()
	if !info.Active || info.Pending != 2 || info.Query != "all" {
		t.Errorf("Info = %+v", info)
	}
	changes := o.Drain()
	if len(changes) != 2 || changes[0].Kind != ChangeInitial || changes[1].Kind != ChangeUpdate {
		t.Errorf("Drain = %+v", changes)
	}
	if again := o.Drain(); len(again) != 0 {
		t.Errorf("second Drain = %+v, want empty", again)
	}

	o.Stop()
	if o.Info().Active {
		t.Error("observer still active after Stop")
	}
}

func TestObserver_RecordsFailure(t *testing.T) {
	s := newTestStore(t)
	sess := NewSession()
	defer sess.Clear()

	ref := trackN(t, s, sess, 1)[0]
	o, _ := sess.Resolve(ref)
	s.feed.fail(ErrStoreInvalidated)

	waitFor(t, "observer to stop", func() bool { return !o.Info().Active })
	if info := o.Info(); info.Error == "" {
		t.Errorf("Info = %+v, want error recorded", info)
	}
}
