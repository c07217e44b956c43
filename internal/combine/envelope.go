package combine

import (
	"time"

	"github.com/roach88/ffmix/internal/effect"
)

// applyEnvelope shapes a signed instantaneous level by the effect's
// attack/fade envelope.
//
// During the attack window the magnitude ramps linearly from AttackLevel
// to the nominal magnitude; during the final FadeLength of a finite
// playback window it ramps down to FadeLevel. Shaping operates on the
// absolute level; the sign is restored afterwards so envelopes never flip
// force direction. Infinite playback windows have no fade phase.
func applyEnvelope(env effect.Envelope, level int32, elapsed, length time.Duration) int32 {
	if env.Zero() || level == 0 {
		return level
	}

	mag := int64(level)
	neg := mag < 0
	if neg {
		mag = -mag
	}

	switch {
	case env.AttackLength > 0 && elapsed < env.AttackLength:
		diff := mag - int64(env.AttackLevel)
		mag = int64(env.AttackLevel) + diff*int64(elapsed)/int64(env.AttackLength)
	case length > 0 && env.FadeLength > 0 && elapsed > length-env.FadeLength:
		remaining := length - elapsed
		if remaining < 0 {
			remaining = 0
		}
		diff := mag - int64(env.FadeLevel)
		mag = int64(env.FadeLevel) + diff*int64(remaining)/int64(env.FadeLength)
	}

	if neg {
		mag = -mag
	}
	return effect.ClampLevel(mag)
}
