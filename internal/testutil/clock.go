// Package testutil provides deterministic time sources for tests and
// the scenario harness.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the fixed starting instant used when no explicit start time
// is given. Scenarios anchored here produce byte-identical traces on
// every run.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SyntheticTime is a manually advanced wall clock. Paired with
// manual-tick mode it removes real timers from a test entirely: the
// test advances time and steps the scheduler itself.
//
// Thread-safe; the device loop reads Now while the test advances.
type SyntheticTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewSyntheticTime creates a clock at start, or at Epoch when start is
// the zero time.
func NewSyntheticTime(start time.Time) *SyntheticTime {
	if start.IsZero() {
		start = Epoch
	}
	return &SyntheticTime{now: start}
}

// Now returns the current synthetic instant.
func (t *SyntheticTime) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Advance moves the clock forward by d and returns the new instant.
func (t *SyntheticTime) Advance(d time.Duration) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = t.now.Add(d)
	return t.now
}

// Set jumps the clock to an absolute instant.
func (t *SyntheticTime) Set(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
