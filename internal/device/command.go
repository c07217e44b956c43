package device

import (
	"fmt"

	"github.com/roach88/ffmix/internal/effect"
)

// CommandKind distinguishes the outbound command variants.
type CommandKind uint8

const (
	// StartCombined starts or updates the single combined force output.
	// Re-sent every tick while any combinable effect plays; the back-end
	// is not expected to diff successive values.
	StartCombined CommandKind = iota + 1
	// StopCombined stops the combined force output.
	StopCombined
	// StartRumble starts or updates the mixed rumble output.
	StartRumble
	// StopRumble stops the rumble output.
	StopRumble
	// StartUncombinable starts or updates playback of a resident
	// uncombinable effect.
	StartUncombinable
	// StopUncombinable stops playback of a resident uncombinable effect
	// while keeping it ready to resume.
	StopUncombinable
	// UploadUncombinable asks the back-end to make an uncombinable
	// effect hardware-resident. The only command kind that may fail.
	UploadUncombinable
	// EraseUncombinable releases a resident uncombinable effect's slot.
	EraseUncombinable
)

// String returns the snake_case command name used in traces and logs.
func (k CommandKind) String() string {
	switch k {
	case StartCombined:
		return "start_combined"
	case StopCombined:
		return "stop_combined"
	case StartRumble:
		return "start_rumble"
	case StopRumble:
		return "stop_rumble"
	case StartUncombinable:
		return "start_uncomb"
	case StopUncombinable:
		return "stop_uncomb"
	case UploadUncombinable:
		return "upload_uncomb"
	case EraseUncombinable:
		return "erase_uncomb"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// ParseCommandKind maps a command name back to its CommandKind.
func ParseCommandKind(s string) (CommandKind, error) {
	for k := StartCombined; k <= EraseUncombinable; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown command kind %q", s)
}

// CanFail reports whether the protocol permits the back-end to return an
// error for this command kind.
func (k CommandKind) CanFail() bool {
	return k == UploadUncombinable
}

// SimpleForce is a net force vector. Negative X pulls left, positive X
// right; negative Y pulls away from the user, positive Y towards them.
type SimpleForce struct {
	X int32
	Y int32
}

// RumbleForce is the mixed two-channel rumble signal: magnitudes for the
// strong and weak motors plus a direction per channel in the same 16-bit
// encoding as effect directions.
type RumbleForce struct {
	Strong    uint32
	Weak      uint32
	StrongDir uint16
	WeakDir   uint16
}

// UncombRef identifies an uncombinable effect for the per-effect
// lifecycle commands. Effect points at core-owned data and is valid only
// for the duration of the callback.
type UncombRef struct {
	ID     int
	Effect *effect.Effect
}

// Command is one outbound instruction. Exactly the payload matching Kind
// is non-nil.
type Command struct {
	Kind   CommandKind
	Simple *SimpleForce
	Rumble *RumbleForce
	Uncomb *UncombRef
}

// NewCombined builds a StartCombined command.
func NewCombined(f SimpleForce) *Command {
	return &Command{Kind: StartCombined, Simple: &f}
}

// NewStopCombined builds a StopCombined command.
func NewStopCombined() *Command {
	return &Command{Kind: StopCombined}
}

// NewRumble builds a StartRumble command.
func NewRumble(f RumbleForce) *Command {
	return &Command{Kind: StartRumble, Rumble: &f}
}

// NewStopRumble builds a StopRumble command.
func NewStopRumble() *Command {
	return &Command{Kind: StopRumble}
}

// NewUncomb builds an uncombinable lifecycle command of the given kind.
func NewUncomb(kind CommandKind, id int, e *effect.Effect) *Command {
	return &Command{Kind: kind, Uncomb: &UncombRef{ID: id, Effect: e}}
}

// Validate checks that the payload matches the command kind.
func (c *Command) Validate() error {
	switch c.Kind {
	case StartCombined:
		if c.Simple == nil {
			return fmt.Errorf("%s: missing simple force payload", c.Kind)
		}
	case StartRumble:
		if c.Rumble == nil {
			return fmt.Errorf("%s: missing rumble force payload", c.Kind)
		}
	case StartUncombinable, StopUncombinable, UploadUncombinable, EraseUncombinable:
		if c.Uncomb == nil {
			return fmt.Errorf("%s: missing uncombinable reference", c.Kind)
		}
	case StopCombined, StopRumble:
		// No payload.
	default:
		return fmt.Errorf("unknown command kind %d", c.Kind)
	}
	return nil
}

// Clone deep-copies a command, including any referenced effect data.
// Used by recording back-ends and observers that retain commands past
// the callback boundary.
func (c *Command) Clone() *Command {
	if c == nil {
		return nil
	}
	out := &Command{Kind: c.Kind}
	if c.Simple != nil {
		f := *c.Simple
		out.Simple = &f
	}
	if c.Rumble != nil {
		f := *c.Rumble
		out.Rumble = &f
	}
	if c.Uncomb != nil {
		out.Uncomb = &UncombRef{ID: c.Uncomb.ID, Effect: c.Uncomb.Effect.Clone()}
	}
	return out
}

// ControlFunc is the back-end callback capability. The core invokes it
// synchronously, exactly once per decided command, from its single
// decision goroutine. data is the opaque back-end context supplied at
// registration. The callback must be non-blocking and must not call back
// into the core's submission API.
//
// A non-nil error is meaningful only for UploadUncombinable commands.
type ControlFunc func(data any, cmd *Command) error
