package procon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeMotorNeutral(t *testing.T) {
	// The canonical idle encoding every Pro Controller report carries.
	got := encodeMotor(highBandNeutralHz, 0, lowBandNeutralHz, 0)
	assert.Equal(t, [4]byte{0x00, 0x01, 0x40, 0x40}, got)
}

func TestEncodeMotorFullLowBand(t *testing.T) {
	got := encodeMotor(highBandNeutralHz, 0, lowBandStrongHz, 1.0)

	// Frequency bytes unchanged, low-band amplitude at its ceiling.
	assert.Equal(t, byte(0x00), got[0])
	assert.Equal(t, byte(0x01), got[1])
	assert.Equal(t, byte(0x72), got[3], "full amplitude encodes as step 100")
}

func TestAmplitudeStepMonotonic(t *testing.T) {
	prev := -1
	for i := 0; i <= 100; i++ {
		amp := float64(i) / 100
		step := amplitudeStep(amp)
		assert.GreaterOrEqual(t, step, prev, "amp %f", amp)
		prev = step
	}
	assert.Equal(t, 100, prev)
}

func TestAmplitudeStepZeroBelowThreshold(t *testing.T) {
	assert.Equal(t, 0, amplitudeStep(0))
	assert.Equal(t, 0, amplitudeStep(0.004))
}

func TestNormalizeSaturates(t *testing.T) {
	assert.Equal(t, 1.0, normalize(0xffff))
	assert.Equal(t, 1.0, normalize(0x20000), "summed magnitudes above the ceiling clamp")
	assert.Equal(t, 0.0, normalize(0))
}
