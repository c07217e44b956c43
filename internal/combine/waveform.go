package combine

import (
	"math"
	"time"

	"github.com/roach88/ffmix/internal/effect"
)

// periodicLevel evaluates the instantaneous level of a periodic effect at
// the given elapsed playback time.
//
// Phase shifts the waveform horizontally: a phase of FullCircle equals
// one whole period. The envelope shapes the magnitude before waveform
// evaluation; the offset is added afterwards and the result saturates
// into the signed level range.
func periodicLevel(p *effect.PeriodicParams, elapsed, length time.Duration) int32 {
	mag := applyEnvelope(p.Envelope, int32(p.Magnitude), elapsed, length)

	phaseShift := time.Duration(int64(p.Period) * int64(p.Phase) / effect.FullCircle)
	pos := (elapsed + phaseShift) % p.Period
	frac := float64(pos) / float64(p.Period)

	var wave float64
	switch p.Waveform {
	case effect.WaveSine:
		wave = math.Sin(2 * math.Pi * frac)
	case effect.WaveSquare:
		if frac < 0.5 {
			wave = 1
		} else {
			wave = -1
		}
	case effect.WaveTriangle:
		// Rises from -1 to +1 over the first half period, falls back over
		// the second.
		if frac < 0.5 {
			wave = 4*frac - 1
		} else {
			wave = 3 - 4*frac
		}
	case effect.WaveSawUp:
		wave = 2*frac - 1
	case effect.WaveSawDown:
		wave = 1 - 2*frac
	default:
		wave = 0
	}

	v := int64(math.Round(float64(mag)*wave)) + int64(p.Offset)
	return effect.ClampLevel(v)
}

// rampLevel evaluates the instantaneous level of a ramp effect: linear
// interpolation from StartLevel to EndLevel over the playback length,
// envelope-shaped. Ramps always have a finite length (validated at
// submit).
func rampLevel(r *effect.RampParams, elapsed, length time.Duration) int32 {
	if length <= 0 {
		return 0
	}
	if elapsed > length {
		elapsed = length
	}

	span := int64(r.EndLevel) - int64(r.StartLevel)
	level := int64(r.StartLevel) + span*int64(elapsed)/int64(length)
	return applyEnvelope(r.Envelope, effect.ClampLevel(level), elapsed, length)
}
