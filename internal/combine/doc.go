// Package combine implements the per-tick force superposition math.
//
// Everything here is a pure function of (effect parameters, elapsed
// playback time): the scheduler owns time, the registry owns state, and
// this package only evaluates. Each tick the core collects the playing
// effects as Samples and asks for the single net combined force and the
// single mixed rumble signal.
//
// Combination semantics: every combinable contribution is evaluated to an
// instantaneous signed level, decomposed from (direction, level) polar
// form into a Cartesian vector, and summed with saturation. Rumble
// magnitudes sum arithmetically with saturation while rumble directions
// are combined by the same vector decomposition, never by naive angle
// averaging.
package combine
