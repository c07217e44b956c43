package procon

import "math"

// HD rumble band frequencies. Each actuator mixes a high and a low
// band; the strong channel lands on the low band around 160 Hz, the
// weak channel on the high band around 320 Hz. The neutral frequencies
// reproduce the canonical idle encoding 00 01 40 40.
const (
	lowBandStrongHz   = 160.0
	lowBandNeutralHz  = 160.0
	highBandWeakHz    = 320.0
	highBandNeutralHz = 320.0
)

// amplitudeStep maps a normalized amplitude onto the encoding's 0..100
// step scale. The two upper ranges follow the documented logarithmic
// curves; below them the curve is close enough to linear.
func amplitudeStep(amp float64) int {
	switch {
	case amp <= 0.008:
		return 0
	case amp <= 0.12:
		return int(math.Round(amp / 0.12 * 16))
	case amp <= 0.23:
		return int(math.Round(math.Log2(amp*17) * 16))
	default:
		if amp > 1 {
			amp = 1
		}
		return int(math.Round(math.Log2(amp*8.7) * 32))
	}
}

// encodeMotor packs one actuator's high and low band into the 4-byte
// wire form: a 9-bit high-band frequency code sharing its top bit with
// the high-band amplitude byte, then the low-band frequency byte
// carrying the low-band amplitude's half-step flag.
func encodeMotor(hfFreq, hfAmp, lfFreq, lfAmp float64) [4]byte {
	hfStep := amplitudeStep(hfAmp)
	lfStep := amplitudeStep(lfAmp)

	hf := int(math.Round(math.Log2(hfFreq/10) * 32))
	encodedHF := (hf - 0x60) * 4
	lf := int(math.Round(math.Log2(lfFreq/10)*32)) - 0x40

	hiAmp := hfStep * 2
	loAmp := 0x40 + lfStep/2
	if lfStep%2 != 0 {
		loAmp |= 0x8000
	}

	return [4]byte{
		byte(encodedHF),
		byte(encodedHF>>8) + byte(hiAmp),
		byte(lf) + byte(loAmp>>8),
		byte(loAmp),
	}
}
