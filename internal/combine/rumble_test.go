package combine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ffmix/internal/effect"
)

func rumbleSample(strong, weak uint16, dir uint16) Sample {
	return Sample{Effect: &effect.Effect{
		Kind:      effect.KindRumble,
		Direction: dir,
		Rumble:    &effect.RumbleParams{StrongMagnitude: strong, WeakMagnitude: weak},
	}}
}

func TestRumble_Empty(t *testing.T) {
	_, active := Rumble(nil)
	assert.False(t, active)
}

func TestRumble_SumsMagnitudes(t *testing.T) {
	force, active := Rumble([]Sample{
		rumbleSample(100, 50, 0),
		rumbleSample(200, 80, 0),
	})
	assert.True(t, active)
	assert.Equal(t, uint32(300), force.Strong)
	assert.Equal(t, uint32(130), force.Weak)
}

func TestRumble_SaturatesAtMaxMagnitude(t *testing.T) {
	force, _ := Rumble([]Sample{
		rumbleSample(effect.MaxMagnitude, effect.MaxMagnitude, 0),
		rumbleSample(effect.MaxMagnitude, 2, 0),
	})
	assert.Equal(t, uint32(effect.MaxMagnitude), force.Strong)
	assert.Equal(t, uint32(effect.MaxMagnitude), force.Weak)
}

func TestRumble_DirectionFollowsDominantMagnitude(t *testing.T) {
	// A strong effect pointing right and a much weaker one pointing
	// towards the user: the combined direction stays close to right.
	force, _ := Rumble([]Sample{
		rumbleSample(10000, 0, 0xC000),
		rumbleSample(100, 0, 0x8000),
	})

	diff := int(force.StrongDir) - 0xC000
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 0x200, "direction 0x%04x should stay near 0xC000", force.StrongDir)
}

func TestRumble_IgnoresOtherKinds(t *testing.T) {
	_, active := Rumble([]Sample{constantSample(100, 0)})
	assert.False(t, active)
}

func TestRumble_SingleEffectKeepsItsDirection(t *testing.T) {
	force, _ := Rumble([]Sample{rumbleSample(500, 500, 0x4000)})
	assert.Equal(t, uint16(0x4000), force.StrongDir)
	assert.Equal(t, uint16(0x4000), force.WeakDir)
}
