package effect

import "math"

// Direction handling.
//
// A direction is a 16-bit angle with FullCircle (0x10000) units per turn.
// Direction 0 points away from the user (negative Y), 0x4000 points left
// (negative X), 0x8000 towards the user, 0xC000 right. The canonical
// combination rule for superposed forces is polar-to-Cartesian: every
// (direction, level) pair is decomposed into an (x, y) vector before
// summation, never averaged as raw angles.

// radians converts a 16-bit direction into radians.
func radians(dir uint16) float64 {
	return 2 * math.Pi * float64(dir) / FullCircle
}

// DirectionVector decomposes a direction and signed level into Cartesian
// force components. Positive X pulls right, positive Y pulls towards the
// user.
func DirectionVector(dir uint16, level int32) (x, y int32) {
	theta := radians(dir)
	x = int32(math.Round(-float64(level) * math.Sin(theta)))
	y = int32(math.Round(-float64(level) * math.Cos(theta)))
	return x, y
}

// VectorDirection recomposes a Cartesian vector into the 16-bit direction
// encoding. The zero vector maps to direction 0.
func VectorDirection(x, y float64) uint16 {
	if x == 0 && y == 0 {
		return 0
	}
	theta := math.Atan2(-x, -y)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	return uint16(math.Round(theta/(2*math.Pi)*FullCircle)) & (FullCircle - 1)
}

// ClampLevel saturates a wide intermediate value into the signed level
// range. Superposition sums saturate instead of wrapping.
func ClampLevel(v int64) int32 {
	if v > MaxLevel {
		return MaxLevel
	}
	if v < MinLevel {
		return MinLevel
	}
	return int32(v)
}

// SaturateMagnitude saturates an unsigned magnitude sum at MaxMagnitude.
func SaturateMagnitude(v uint64) uint32 {
	if v > MaxMagnitude {
		return MaxMagnitude
	}
	return uint32(v)
}
