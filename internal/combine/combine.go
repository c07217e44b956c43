package combine

import (
	"time"

	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
)

// Sample pairs an effect with its elapsed playback time at the moment of
// evaluation. Elapsed is measured from force onset (after any start
// delay) and Length is the effect's remaining-window length used for
// envelope fade computation.
type Sample struct {
	Effect  *effect.Effect
	Elapsed time.Duration
}

// Combined superposes all combinable samples into the single net force
// vector. Non-combinable samples are ignored. The second return value
// reports whether any combinable effect contributed; a contribution of
// numeric zero still counts as active, since recomputation cadence (not
// value diffing) decides when the combined channel stops.
func Combined(samples []Sample) (device.SimpleForce, bool) {
	var sumX, sumY int64
	active := false

	for _, s := range samples {
		e := s.Effect
		if e == nil || !e.Kind.Combinable() {
			continue
		}
		active = true

		level := Level(e, s.Elapsed)
		x, y := effect.DirectionVector(e.Direction, level)
		sumX += int64(x)
		sumY += int64(y)
	}

	return device.SimpleForce{
		X: effect.ClampLevel(sumX),
		Y: effect.ClampLevel(sumY),
	}, active
}

// Level evaluates one combinable effect's instantaneous signed level at
// the given elapsed playback time.
func Level(e *effect.Effect, elapsed time.Duration) int32 {
	length := e.Replay.Length
	switch e.Kind {
	case effect.KindConstant:
		return applyEnvelope(e.Constant.Envelope, int32(e.Constant.Level), elapsed, length)
	case effect.KindPeriodic:
		return periodicLevel(e.Periodic, elapsed, length)
	case effect.KindRamp:
		return rampLevel(e.Ramp, elapsed, length)
	default:
		return 0
	}
}
