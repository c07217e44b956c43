package combine

import (
	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
)

// Rumble mixes all playing rumble samples into the single two-channel
// rumble signal. Magnitudes are summed arithmetically and saturate at the
// maximum representable magnitude. Directions are combined by vector
// decomposition weighted by each effect's magnitude, so a weak effect
// cannot bias the direction of a strong one the way naive angle averaging
// would.
func Rumble(samples []Sample) (device.RumbleForce, bool) {
	var (
		strongSum, weakSum uint64
		strongX, strongY   float64
		weakX, weakY       float64
	)
	active := false

	for _, s := range samples {
		e := s.Effect
		if e == nil || e.Kind != effect.KindRumble {
			continue
		}
		active = true

		r := e.Rumble
		strongSum += uint64(r.StrongMagnitude)
		weakSum += uint64(r.WeakMagnitude)

		x, y := effect.DirectionVector(e.Direction, int32(r.StrongMagnitude))
		strongX += float64(x)
		strongY += float64(y)
		x, y = effect.DirectionVector(e.Direction, int32(r.WeakMagnitude))
		weakX += float64(x)
		weakY += float64(y)
	}

	return device.RumbleForce{
		Strong:    effect.SaturateMagnitude(strongSum),
		Weak:      effect.SaturateMagnitude(weakSum),
		StrongDir: effect.VectorDirection(strongX, strongY),
		WeakDir:   effect.VectorDirection(weakX, weakY),
	}, active
}
