// Package registry holds the set of currently submitted force-feedback
// effects. It is the source of truth for combination and lifecycle
// decisions.
//
// The registry is deliberately not internally locked: all mutation flows
// through the device's single decision goroutine (requests are enqueued
// and drained there), so a consistent snapshot per tick falls out of the
// single-writer design rather than per-field locking.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ffmix/internal/effect"
)

// ErrNotFound reports an operation on an unknown effect identifier.
var ErrNotFound = errors.New("effect not found")

// Record is one registered effect plus its playback state. Submitting
// creates a record that is not yet playing; start and stop toggle
// playback without destroying the record, so an uncombinable effect can
// still be erased from hardware after it stops.
type Record struct {
	Effect effect.Effect

	// Playing is the "currently playing" flag. A stopped record is
	// retained until erased.
	Playing bool

	// StartedAt is the wall (or synthetic) time of the current playback
	// window's start. Meaningful only while Playing.
	StartedAt time.Time

	// Remaining counts playback repetitions left, including the current
	// one. Meaningful only while Playing.
	Remaining int

	// Reupload marks that parameters changed while the effect was
	// hardware-resident and the back-end must re-provision.
	Reupload bool

	seq int // submission order, for deterministic iteration
}

// Elapsed returns the playback time elapsed at now, net of the start
// delay. The second return is false while the delay has not passed.
func (r *Record) Elapsed(now time.Time) (time.Duration, bool) {
	d := now.Sub(r.StartedAt) - r.Effect.Replay.Delay
	if d < 0 {
		return 0, false
	}
	return d, true
}

// Expired reports whether the current playback window has run out at
// now. Records with an infinite window never expire.
func (r *Record) Expired(now time.Time) bool {
	if !r.Playing || r.Effect.Replay.Length == 0 {
		return false
	}
	elapsed, started := r.Elapsed(now)
	return started && elapsed >= r.Effect.Replay.Length
}

// Registry owns all effect records, keyed by identifier.
type Registry struct {
	records map[int]*Record
	nextID  int
	nextSeq int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[int]*Record), nextID: 1}
}

// Submit validates the effect, assigns a fresh identifier and stores the
// record in the not-yet-playing state. Creation and playback are distinct
// operations, mirroring the upstream submission semantics.
func (g *Registry) Submit(e effect.Effect) (int, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}

	id := g.nextID
	g.nextID++
	e.ID = id
	g.records[id] = &Record{Effect: e, seq: g.nextSeq}
	g.nextSeq++
	return id, nil
}

// Update replaces an effect's parameters in place. Playback state
// (playing flag, window start, repetitions) is preserved; for a playing
// combinable effect the new parameters take hold at the next tick's
// recomputation. Resident uncombinable effects are flagged for
// re-provisioning.
func (g *Registry) Update(id int, e effect.Effect) error {
	rec, ok := g.records[id]
	if !ok {
		return fmt.Errorf("update effect %d: %w", id, ErrNotFound)
	}
	if e.Kind != rec.Effect.Kind {
		return fmt.Errorf("update effect %d: kind change from %s to %s not allowed",
			id, rec.Effect.Kind, e.Kind)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("update effect %d: %w", id, err)
	}

	e.ID = id
	rec.Effect = e
	if rec.Effect.Kind.Conditional() {
		rec.Reupload = true
	}
	return nil
}

// Start marks an effect playing from now with the given repeat count
// (values below 1 are treated as 1). Restarting a playing effect resets
// its playback window.
func (g *Registry) Start(id int, repeat int, now time.Time) (*Record, error) {
	rec, ok := g.records[id]
	if !ok {
		return nil, fmt.Errorf("start effect %d: %w", id, ErrNotFound)
	}
	if repeat < 1 {
		repeat = 1
	}
	rec.Playing = true
	rec.StartedAt = now
	rec.Remaining = repeat
	return rec, nil
}

// Stop marks an effect inactive. The record is retained so a resident
// uncombinable effect can still be erased later.
func (g *Registry) Stop(id int) (*Record, error) {
	rec, ok := g.records[id]
	if !ok {
		return nil, fmt.Errorf("stop effect %d: %w", id, ErrNotFound)
	}
	rec.Playing = false
	rec.Remaining = 0
	return rec, nil
}

// Erase removes the record entirely and returns it so the caller can
// settle any hardware residency first. Erasing an unknown id is a
// not-found condition with no state change.
func (g *Registry) Erase(id int) (*Record, error) {
	rec, ok := g.records[id]
	if !ok {
		return nil, fmt.Errorf("erase effect %d: %w", id, ErrNotFound)
	}
	delete(g.records, id)
	return rec, nil
}

// Get looks up a record by id.
func (g *Registry) Get(id int) (*Record, bool) {
	rec, ok := g.records[id]
	return rec, ok
}

// Playing returns all currently playing records in submission order.
func (g *Registry) Playing() []*Record {
	return g.collect(func(r *Record) bool { return r.Playing })
}

// All returns every record in submission order, playing or not.
func (g *Registry) All() []*Record {
	return g.collect(func(*Record) bool { return true })
}

// Len returns the number of records, playing or not.
func (g *Registry) Len() int {
	return len(g.records)
}

func (g *Registry) collect(keep func(*Record) bool) []*Record {
	out := make([]*Record, 0, len(g.records))
	for _, rec := range g.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	// Insertion sort on submission seq; registries are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].seq > out[j].seq; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
