package spanstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Observer collects the events of one subscription so they can be read
// later by reference.
type Observer struct {
	ref  string
	sub  *Subscription
	done chan struct{}

	mu       sync.Mutex
	pending  []Change
	received int
	err      error
}

func newObserver(ref string, sub *Subscription, debug *DebugLogger) *Observer {
	o := &Observer{ref: ref, sub: sub, done: make(chan struct{})}
	go o.collect(debug)
	return o
}

func (o *Observer) collect(debug *DebugLogger) {
	defer close(o.done)
	for change := range o.sub.Changes() {
		switch change.Kind {
		case ChangeInitial:
			debug.Log("%s: initial count=%d", o.ref, change.Count)
		case ChangeUpdate:
			debug.Log("%s: update count=%d, %d deleted, %d inserted, %d modified",
				o.ref, change.Count, len(change.Deleted), len(change.Inserted), len(change.Modified))
		case ChangeError:
			debug.LogError(o.ref, change.Err)
		}

		o.mu.Lock()
		o.pending = append(o.pending, change)
		o.received++
		if change.Kind == ChangeError {
			o.err = change.Err
		}
		o.mu.Unlock()
	}
}

// Ref returns the observer's session reference.
func (o *Observer) Ref() string { return o.ref }

// Drain returns the events collected since the last call.
func (o *Observer) Drain() []Change {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}

// Stop unsubscribes and waits for collection to finish.
func (o *Observer) Stop() {
	o.sub.Unsubscribe()
	<-o.done
}

// Info summarizes the observer.
func (o *Observer) Info() ObserverInfo {
	active := true
	select {
	case <-o.done:
		active = false
	default:
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	info := ObserverInfo{
		Ref:      o.ref,
		Query:    o.sub.Query().String(),
		KeyPaths: o.sub.KeyPaths(),
		Received: o.received,
		Pending:  len(o.pending),
		Active:   active,
	}
	if o.err != nil {
		info.Error = o.err.Error()
	}
	return info
}

// Session tracks the observers started by a client, by reference.
type Session struct {
	mu        sync.Mutex
	observers map[string]*Observer // session ref (O1, O2) -> observer
	counter   int
	debug     *DebugLogger
}

// NewSession creates a new session tracker.
func NewSession() *Session {
	return &Session{observers: make(map[string]*Observer)}
}

// Track starts collecting events from sub and returns its session reference.
func (s *Session) Track(sub *Subscription) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	ref := fmt.Sprintf("O%d", s.counter)
	s.observers[ref] = newObserver(ref, sub, s.debug)
	return ref
}

// Resolve finds an observer by reference. References are matched
// case-insensitively, and a bare number is accepted ("2" for "O2").
func (s *Session) Resolve(ref string) (*Observer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.observers[normalizeRef(ref)]
	return o, ok
}

// Remove stops tracking an observer and returns it.
func (s *Session) Remove(ref string) (*Observer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeRef(ref)
	o, ok := s.observers[key]
	if ok {
		delete(s.observers, key)
	}
	return o, ok
}

// Refs returns the tracked references in creation order.
func (s *Session) Refs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make([]string, 0, len(s.observers))
	for ref := range s.observers {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		a, _ := strconv.Atoi(refs[i][1:])
		b, _ := strconv.Atoi(refs[j][1:])
		return a < b
	})
	return refs
}

// Count returns the number of tracked observers.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Clear stops every observer and resets the reference counter.
func (s *Session) Clear() {
	s.mu.Lock()
	observers := s.observers
	s.observers = make(map[string]*Observer)
	s.counter = 0
	s.mu.Unlock()

	for _, o := range observers {
		o.Stop()
	}
}

func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if _, err := strconv.Atoi(ref); err == nil {
		return "O" + ref
	}
	return strings.ToUpper(ref)
}
