package effect

import (
	"fmt"
	"time"
)

// Kind identifies what an effect does and how the core handles it.
type Kind uint8

const (
	// KindConstant is a constant force along one direction. Combinable.
	KindConstant Kind = iota + 1
	// KindPeriodic is a time-varying waveform force. Combinable.
	KindPeriodic
	// KindRamp is a force interpolating between two levels. Combinable.
	KindRamp
	// KindRumble drives the device's vibration motors. Mixed separately
	// from the force-vector channel.
	KindRumble
	// KindSpring is a position-dependent conditional effect. Uncombinable.
	KindSpring
	// KindDamper is a velocity-dependent conditional effect. Uncombinable.
	KindDamper
	// KindFriction is a movement-resisting conditional effect. Uncombinable.
	KindFriction
	// KindInertia is an acceleration-dependent conditional effect. Uncombinable.
	KindInertia
)

// String returns the lowercase kind name used in scenario files and traces.
func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindPeriodic:
		return "periodic"
	case KindRamp:
		return "ramp"
	case KindRumble:
		return "rumble"
	case KindSpring:
		return "spring"
	case KindDamper:
		return "damper"
	case KindFriction:
		return "friction"
	case KindInertia:
		return "inertia"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps a kind name back to its Kind value.
func ParseKind(s string) (Kind, error) {
	for k := KindConstant; k <= KindInertia; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown effect kind %q", s)
}

// Combinable reports whether effects of this kind are summed into the
// single net force vector.
func (k Kind) Combinable() bool {
	return k == KindConstant || k == KindPeriodic || k == KindRamp
}

// Conditional reports whether effects of this kind are uncombinable and
// must be handled through per-effect hardware slots.
func (k Kind) Conditional() bool {
	return k == KindSpring || k == KindDamper || k == KindFriction || k == KindInertia
}

// Waveform selects the shape of a periodic effect.
type Waveform uint8

const (
	WaveSine Waveform = iota + 1
	WaveSquare
	WaveTriangle
	WaveSawUp
	WaveSawDown
)

// String returns the lowercase waveform name.
func (w Waveform) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSquare:
		return "square"
	case WaveTriangle:
		return "triangle"
	case WaveSawUp:
		return "saw_up"
	case WaveSawDown:
		return "saw_down"
	default:
		return fmt.Sprintf("waveform(%d)", uint8(w))
	}
}

// ParseWaveform maps a waveform name back to its Waveform value.
func ParseWaveform(s string) (Waveform, error) {
	for w := WaveSine; w <= WaveSawDown; w++ {
		if w.String() == s {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown waveform %q", s)
}

// Numeric limits of the effect encoding.
const (
	// MaxLevel is the largest signed force level.
	MaxLevel = 0x7fff
	// MinLevel is the most negative signed force level.
	MinLevel = -0x8000
	// MaxMagnitude is the largest unsigned rumble magnitude. Sums
	// saturate here rather than overflowing.
	MaxMagnitude = 0xffff
	// FullCircle is the number of direction units in a full turn.
	FullCircle = 0x10000
)

// Envelope shapes an effect's magnitude over its playback window: the
// level ramps from AttackLevel to the nominal magnitude over
// AttackLength, and down to FadeLevel over the final FadeLength of a
// finite window. A zero Envelope applies no shaping.
type Envelope struct {
	AttackLength time.Duration
	AttackLevel  uint16
	FadeLength   time.Duration
	FadeLevel    uint16
}

// Zero reports whether the envelope applies no shaping at all.
func (e Envelope) Zero() bool {
	return e.AttackLength == 0 && e.FadeLength == 0
}

// Replay is the playback window of an effect. Length zero means the
// effect plays until stopped. Delay postpones force onset after start.
type Replay struct {
	Length time.Duration
	Delay  time.Duration
}

// ConstantParams parameterizes a constant-force effect.
type ConstantParams struct {
	Level    int16
	Envelope Envelope
}

// PeriodicParams parameterizes a periodic-waveform effect. Phase is a
// horizontal shift in direction units (FullCircle = one full period).
type PeriodicParams struct {
	Waveform  Waveform
	Period    time.Duration
	Magnitude int16
	Offset    int16
	Phase     uint16
	Envelope  Envelope
}

// RampParams parameterizes a ramp effect: linear interpolation from
// StartLevel to EndLevel over the playback length.
type RampParams struct {
	StartLevel int16
	EndLevel   int16
	Envelope   Envelope
}

// RumbleParams parameterizes a rumble effect.
type RumbleParams struct {
	StrongMagnitude uint16
	WeakMagnitude   uint16
}

// ConditionParams parameterizes one axis of a conditional effect. The
// core never interprets these; they are provisioned verbatim to the
// hardware back-end on upload.
type ConditionParams struct {
	RightSaturation uint16
	LeftSaturation  uint16
	RightCoeff      int16
	LeftCoeff       int16
	Deadband        uint16
	Center          int16
}

// Effect is one submitted force-feedback request. Exactly one of the
// kind-specific parameter pointers is set, matching Kind (the tagged
// union convention also used for outbound commands).
//
// ID is assigned by the registry on submit; zero means unassigned.
type Effect struct {
	ID        int
	Kind      Kind
	Direction uint16
	Replay    Replay

	Constant  *ConstantParams
	Periodic  *PeriodicParams
	Ramp      *RampParams
	Rumble    *RumbleParams
	Condition *[2]ConditionParams
}

// Validate checks structural consistency: a known kind, the matching
// parameter block present, and no stray blocks from other kinds.
func (e *Effect) Validate() error {
	var want string
	set := 0
	if e.Constant != nil {
		set++
	}
	if e.Periodic != nil {
		set++
	}
	if e.Ramp != nil {
		set++
	}
	if e.Rumble != nil {
		set++
	}
	if e.Condition != nil {
		set++
	}

	switch e.Kind {
	case KindConstant:
		if e.Constant == nil {
			want = "constant"
		}
	case KindPeriodic:
		if e.Periodic == nil {
			want = "periodic"
		} else if e.Periodic.Period <= 0 {
			return fmt.Errorf("periodic effect: period must be positive, got %v", e.Periodic.Period)
		} else if e.Periodic.Waveform < WaveSine || e.Periodic.Waveform > WaveSawDown {
			return fmt.Errorf("periodic effect: unknown waveform %d", e.Periodic.Waveform)
		}
	case KindRamp:
		if e.Ramp == nil {
			want = "ramp"
		} else if e.Replay.Length == 0 {
			return fmt.Errorf("ramp effect: playback length must be finite")
		}
	case KindRumble:
		if e.Rumble == nil {
			want = "rumble"
		}
	case KindSpring, KindDamper, KindFriction, KindInertia:
		if e.Condition == nil {
			want = "condition"
		}
	default:
		return fmt.Errorf("unknown effect kind %d", e.Kind)
	}

	if want != "" {
		return fmt.Errorf("%s effect: missing %s parameters", e.Kind, want)
	}
	if set != 1 {
		return fmt.Errorf("%s effect: exactly one parameter block must be set, got %d", e.Kind, set)
	}
	if e.Replay.Length < 0 || e.Replay.Delay < 0 {
		return fmt.Errorf("%s effect: negative playback window", e.Kind)
	}
	return nil
}

// Clone returns a deep copy. Command payloads handed to the back-end
// reference registry-owned effects; callers that need to retain effect
// data across the callback boundary must copy it.
func (e *Effect) Clone() *Effect {
	if e == nil {
		return nil
	}
	c := *e
	if e.Constant != nil {
		p := *e.Constant
		c.Constant = &p
	}
	if e.Periodic != nil {
		p := *e.Periodic
		c.Periodic = &p
	}
	if e.Ramp != nil {
		p := *e.Ramp
		c.Ramp = &p
	}
	if e.Rumble != nil {
		p := *e.Rumble
		c.Rumble = &p
	}
	if e.Condition != nil {
		p := *e.Condition
		c.Condition = &p
	}
	return &c
}
