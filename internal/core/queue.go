package core

import (
	"sync"
	"time"

	"github.com/roach88/ffmix/internal/effect"
)

// opKind identifies a request to the decision loop.
type opKind int

const (
	opSubmit opKind = iota + 1
	opUpdate
	opStart
	opStop
	opErase
	opActive
	opTick
)

// request is one unit of work for the decision loop. Mutation requests
// carry a reply channel so callers observe the serialized outcome;
// scheduler ticks from the free-running pump carry none.
type request struct {
	op     opKind
	id     int
	repeat int
	effect effect.Effect
	now    time.Time

	reply chan response
}

// response answers a request. active is only populated for opActive.
type response struct {
	id     int
	active []effect.Effect
	err    error
}

// requestQueue is a thread-safe FIFO feeding the single-writer loop.
//
// Unbounded so a burst of submissions between ticks never blocks the
// caller; coalescing happens at the tick, not at the queue. A buffered
// signal channel of size one lets the loop wait without busy-polling
// while still coalescing multiple wakeups.
type requestQueue struct {
	mu     sync.Mutex
	items  []request
	closed bool
	signal chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		items:  make([]request, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a request. Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front request without blocking.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return request{}, false
	}

	r := q.items[0]
	// Clear the slot so the reply channel and effect payload can be
	// collected while the backing array lives on.
	q.items[0] = request{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return r, true
}

// Wait returns the wakeup channel; it is closed when the queue closes.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes all waiters. Pending requests
// already enqueued are still drained by the loop.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
