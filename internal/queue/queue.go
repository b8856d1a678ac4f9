// Package queue provides an unbounded FIFO that hands items to a single
// consumer through a channel.
package queue

import "sync"

// Queue buffers pushed items without limit and delivers them in order on
// Out. Producers never block on a slow consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	sealed bool
	closed bool

	signal chan struct{}
	done   chan struct{}
	exited chan struct{}
	out    chan T
}

// New creates a queue and starts its delivery goroutine. Every queue must
// eventually be sealed or closed.
func New[T any]() *Queue[T] {
	q := &Queue[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		out:    make(chan T),
	}
	go q.pump()
	return q
}

// Out returns the delivery channel. It is closed once the queue is
// closed, or sealed and drained.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Push appends v. It returns false if the queue is sealed or closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.sealed || q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.notify()
	return true
}

// Seal stops accepting items. Pending items are still delivered, then Out
// is closed.
func (q *Queue[T]) Seal() {
	q.mu.Lock()
	if q.sealed || q.closed {
		q.mu.Unlock()
		return
	}
	q.sealed = true
	q.mu.Unlock()
	q.notify()
}

// Close drops pending items and closes Out. When Close returns nothing
// more will be delivered. Safe to call more than once, and from the
// goroutine reading Out.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.exited
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	close(q.done)
	<-q.exited
}

// Len returns the number of items waiting for delivery.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) pump() {
	defer close(q.exited)
	defer close(q.out)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			sealed := q.sealed
			q.mu.Unlock()
			if sealed {
				return
			}
			select {
			case <-q.signal:
				continue
			case <-q.done:
				return
			}
		}
		v := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- v:
		case <-q.done:
			return
		}
	}
}
