// Package core is the combination-and-handshake engine: it owns the
// effect registry, drives the periodic recomputation tick, superposes
// combinable effects into one net force, mixes rumble effects, advances
// the uncombinable lifecycle state machines, and serializes every
// resulting command to the hardware back-end.
//
// # Concurrency model
//
// There are two sources of concurrent activity: userspace-style
// submission calls (Submit/Update/Start/Stop/Erase) and the periodic
// tick. Both serialize through a single-writer decision loop: every
// operation is enqueued as a request and drained by the one goroutine
// running Run. A tick is itself a request, so registry snapshot, force
// recomputation, lifecycle evaluation and dispatch form one atomic unit;
// a mutation arriving mid-tick is deferred to the next tick, never
// partially observed. This is message passing instead of fine-grained
// locking, the same single-writer discipline as an event-sourcing loop.
//
// # Scheduling
//
// The recomputation interval is clamped to MinUpdateRate, never
// rejected. Submissions faster than the tick cadence are coalesced: the
// effect of the latest update is what the next tick combines, not each
// intermediate value. There is no unbounded command queuing; decisions
// are recomputed fresh each tick, so at most one command per effect and
// transition kind is ever outstanding.
//
// # Failure semantics
//
// Only upload commands may fail; a rejection is surfaced to the Start
// (or Update) caller and the effect stays off the hardware. A back-end
// returning an error for any other command kind violates the protocol
// contract: the device loop stops with a ProtocolError rather than
// attempting recovery on behalf of a misbehaving collaborator.
package core
