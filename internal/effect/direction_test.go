package effect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionVector_CardinalDirections(t *testing.T) {
	tests := []struct {
		name  string
		dir   uint16
		level int32
		x, y  int32
	}{
		{"away from user", 0x0000, 100, 0, -100},
		{"left", 0x4000, 100, -100, 0},
		{"towards user", 0x8000, 100, 0, 100},
		{"right", 0xC000, 100, 100, 0},
		{"negative level flips", 0xC000, -100, -100, 0},
		{"zero level", 0x4000, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := DirectionVector(tt.dir, tt.level)
			assert.Equal(t, tt.x, x, "x")
			assert.Equal(t, tt.y, y, "y")
		})
	}
}

func TestVectorDirection_RoundTrip(t *testing.T) {
	for _, dir := range []uint16{0x0000, 0x2000, 0x4000, 0x6000, 0x8000, 0xA000, 0xC000, 0xE000} {
		x, y := DirectionVector(dir, 10000)
		got := VectorDirection(float64(x), float64(y))
		// Rounding through Cartesian space may shift by a few direction units.
		diff := int(got) - int(dir)
		if diff > FullCircle/2 {
			diff -= FullCircle
		}
		if diff < -FullCircle/2 {
			diff += FullCircle
		}
		assert.LessOrEqual(t, abs(diff), 4, "direction 0x%04x round-tripped to 0x%04x", dir, got)
	}
}

func TestVectorDirection_ZeroVector(t *testing.T) {
	assert.Equal(t, uint16(0), VectorDirection(0, 0))
}

func TestClampLevel(t *testing.T) {
	assert.Equal(t, int32(MaxLevel), ClampLevel(1<<40))
	assert.Equal(t, int32(MinLevel), ClampLevel(-(1 << 40)))
	assert.Equal(t, int32(1234), ClampLevel(1234))
	assert.Equal(t, int32(-1234), ClampLevel(-1234))
}

func TestSaturateMagnitude(t *testing.T) {
	assert.Equal(t, uint32(MaxMagnitude), SaturateMagnitude(1<<33))
	assert.Equal(t, uint32(300), SaturateMagnitude(300))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
