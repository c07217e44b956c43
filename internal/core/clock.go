package core

import "sync/atomic"

// Clock is a monotonic logical clock stamping every dispatched command
// with a strictly increasing sequence number. Sequence numbers give
// traces a deterministic total order independent of wall time, which is
// what makes recorded runs replayable and golden-comparable.
//
// Safe for concurrent use, though the single-writer loop means only one
// goroutine calls Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
