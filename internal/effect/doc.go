// Package effect defines the force-feedback effect data model.
//
// An Effect is an abstract request submitted by userspace: a kind
// (constant, periodic, ramp, rumble, or one of the conditional kinds),
// kind-specific parameters, an optional attack/fade envelope, and a
// playback window. Effects are owned by the registry; everything in this
// package is plain data with no behavior beyond validation and the
// direction/level conversions shared by the combination engine.
//
// # Kinds
//
// Effects split into three groups with different handling downstream:
//
//   - Combinable (constant, periodic, ramp): superposed into a single net
//     force vector each tick.
//   - Rumble: mixed into one two-channel magnitude/direction signal,
//     independent of the force vector.
//   - Conditional (spring, damper, friction, inertia): uncombinable;
//     handed to the hardware back-end individually through an explicit
//     upload/start/stop/erase lifecycle.
//
// # Encodings
//
// Directions are 16-bit angles where the full circle is 0x10000 units.
// Signed levels span -MaxLevel..MaxLevel; rumble magnitudes are unsigned
// and saturate at MaxMagnitude. Envelope levels use the same 0..MaxLevel
// scale as signed levels.
package effect
