package spanstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperengineering/spanstore/internal/queue"
)

// entry is one member of a subscription's observed set.
type entry struct {
	rowid int64
	id    string
}

// Subscription is a live query. Events arrive on Changes in commit order,
// starting with a single ChangeInitial.
type Subscription struct {
	id       uint64
	feed     *feed
	query    Query
	keyPaths []string
	queue    *queue.Queue[Change]
	once     sync.Once

	// snapshot is ordered by rowid and guarded by feed.mu.
	snapshot []entry
}

// ID returns the subscription's identifier, unique within its store.
func (s *Subscription) ID() uint64 { return s.id }

// Query returns the observed query.
func (s *Subscription) Query() Query { return s.query }

// KeyPaths returns the key paths modifications are filtered by.
func (s *Subscription) KeyPaths() []string {
	return append([]string(nil), s.keyPaths...)
}

// Changes delivers the subscription's events. The channel is closed when
// the subscription ends.
func (s *Subscription) Changes() <-chan Change {
	return s.queue.Out()
}

// Unsubscribe stops delivery. When it returns the Changes channel is
// closed and no further event will be received. Safe to call more than
// once and from the goroutine reading Changes.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s.id)
		s.queue.Close()
		s.feed.debug.LogSubscription("removed", s.id, s.query.String())
	})
}

// Subscribe registers a live query. The ChangeInitial event, carrying the
// number of records matching q right now, is queued before Subscribe
// returns. Key paths restrict which modifications are reported; inserts
// and deletions are always reported.
func (s *Store) Subscribe(ctx context.Context, q Query, keyPaths ...string) (*Subscription, error) {
	compiled, err := q.compile()
	if err != nil {
		return nil, err
	}
	for _, kp := range keyPaths {
		if !knownField(kp) {
			return nil, fmt.Errorf("%w: key path %q", ErrUnknownField, kp)
		}
	}

	// Holding writeMu orders the snapshot against commits.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.feed.failure(); err != nil {
		return nil, &ObservationError{Err: err}
	}

	snapshot, err := s.snapshot(ctx, compiled)
	if err != nil {
		return nil, &ObservationError{Err: err}
	}

	sub, err := s.feed.add(compiled, keyPaths, snapshot)
	if err != nil {
		return nil, err
	}
	s.debug.LogSubscription("added", sub.id, compiled.String())
	return sub, nil
}

// Observe subscribes to every record in the store.
func (s *Store) Observe(ctx context.Context, keyPaths ...string) (*Subscription, error) {
	return s.Subscribe(ctx, Query{}, keyPaths...)
}

func (s *Store) snapshot(ctx context.Context, q Query) ([]entry, error) {
	where, args := q.where()
	rows, err := s.db.QueryContext(ctx, "SELECT rowid, id FROM records WHERE "+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := []entry{}
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.rowid, &e.id); err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		snapshot = append(snapshot, e)
	}
	return snapshot, rows.Err()
}

func knownField(path string) bool {
	switch path {
	case FieldID, FieldStartedAt, FieldEndedAt, FieldTitle, FieldAccountID,
		FieldEmbedded, FieldEmbeddedNotes, FieldEmbeddedField1, FieldEmbeddedField2:
		return true
	}
	return false
}

// feed fans committed changesets out to subscriptions.
type feed struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	failed error
	debug  *DebugLogger
}

func newFeed(debug *DebugLogger) *feed {
	return &feed{subs: make(map[uint64]*Subscription), debug: debug}
}

// add registers a subscription. The watcher may fail the feed while the
// snapshot is taken, so the failure is checked again under f.mu.
func (f *feed) add(q Query, keyPaths []string, snapshot []entry) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failed != nil {
		return nil, &ObservationError{Err: f.failed}
	}

	f.nextID++
	sub := &Subscription{
		id:       f.nextID,
		feed:     f,
		query:    q,
		keyPaths: append([]string(nil), keyPaths...),
		queue:    queue.New[Change](),
		snapshot: snapshot,
	}
	sub.queue.Push(Change{Kind: ChangeInitial, Count: len(snapshot)})
	f.subs[sub.id] = sub
	return sub, nil
}

func (f *feed) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

func (f *feed) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *feed) failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// publish delivers one committed transaction. Callers hold Store.writeMu.
func (f *feed) publish(ops []op) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs {
		if change, ok := sub.apply(ops); ok {
			sub.queue.Push(change)
		}
	}
}

// fail ends every subscription with a ChangeError. Only the first cause is
// delivered; later subscriptions are refused.
func (f *feed) fail(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failed != nil {
		return
	}
	f.failed = cause
	f.debug.LogError("change feed", cause)

	for id, sub := range f.subs {
		sub.queue.Push(Change{Kind: ChangeError, Err: &ObservationError{Err: cause}})
		sub.queue.Seal()
		delete(f.subs, id)
	}
}

// closeAll ends every subscription after its pending events are delivered.
func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, sub := range f.subs {
		sub.queue.Seal()
		delete(f.subs, id)
	}
}

// apply replays a transaction against the subscription's snapshot and
// returns the resulting event. Deleted indexes refer to the snapshot
// before the transaction, Inserted and Modified to the one after.
func (s *Subscription) apply(ops []op) (Change, bool) {
	old := s.snapshot
	inOld := make(map[string]bool, len(old))
	members := make(map[string]int64, len(old))
	for _, e := range old {
		inOld[e.id] = true
		members[e.id] = e.rowid
	}

	// removed marks old members deleted by the transaction, even if the
	// same id was inserted again afterwards.
	removed := map[string]bool{}
	modified := map[string]bool{}

	for _, o := range ops {
		switch o.kind {
		case opInsert:
			if s.query.Matches(o.record) {
				members[o.record.ID] = o.rowid
			}
		case opUpdate:
			if s.query.Matches(o.record) {
				members[o.record.ID] = o.rowid
				if s.watches(o.fields) {
					modified[o.record.ID] = true
				}
			} else {
				delete(members, o.record.ID)
			}
		case opDeleteAll:
			for id := range members {
				if inOld[id] {
					removed[id] = true
				}
			}
			members = map[string]int64{}
			modified = map[string]bool{}
		}
	}

	next := make([]entry, 0, len(members))
	for id, rowid := range members {
		next = append(next, entry{rowid: rowid, id: id})
	}
	sort.Slice(next, func(i, j int) bool { return next[i].rowid < next[j].rowid })

	var change Change
	for i, e := range old {
		if _, ok := members[e.id]; !ok || removed[e.id] {
			change.Deleted = append(change.Deleted, i)
		}
	}
	for i, e := range next {
		switch {
		case !inOld[e.id] || removed[e.id]:
			change.Inserted = append(change.Inserted, i)
		case modified[e.id]:
			change.Modified = append(change.Modified, i)
		}
	}

	s.snapshot = next
	if len(change.Deleted) == 0 && len(change.Inserted) == 0 && len(change.Modified) == 0 {
		return Change{}, false
	}
	change.Kind = ChangeUpdate
	change.Count = len(next)
	return change, true
}

// watches reports whether a modification of fields is visible through the
// subscription's key paths. A path also covers its nested fields.
func (s *Subscription) watches(fields []string) bool {
	if len(s.keyPaths) == 0 {
		return true
	}
	for _, f := range fields {
		for _, kp := range s.keyPaths {
			if f == kp || strings.HasPrefix(f, kp+".") || strings.HasPrefix(kp, f+".") {
				return true
			}
		}
	}
	return false
}
