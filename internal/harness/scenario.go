package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ffmix/internal/effect"
)

// Scenario defines a deterministic device-session test. A scenario
// drives a manual-tick device against the simulated back-end and
// asserts on the resulting command trace.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Device configures the simulated device under test.
	Device DeviceConfig `yaml:"device"`

	// Steps is the ordered list of operations to perform.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final command trace.
	Assertions []Assertion `yaml:"assertions"`
}

// DeviceConfig configures the device and back-end for one scenario.
type DeviceConfig struct {
	// UpdateRate is the recomputation interval; each plain tick step
	// advances synthetic time by this much. Zero selects the core's
	// default.
	UpdateRate Duration `yaml:"update_rate,omitempty"`

	// Slots is the simulated hardware slot capacity; zero is unlimited.
	Slots int `yaml:"slots,omitempty"`

	// ReuploadOnUpdate overrides the re-provisioning policy for
	// parameter updates. Defaults to enabled.
	ReuploadOnUpdate *bool `yaml:"reupload_on_update,omitempty"`
}

// Step operation names.
const (
	OpSubmit       = "submit"
	OpStart        = "start"
	OpStop         = "stop"
	OpErase        = "erase"
	OpUpdate       = "update"
	OpTick         = "tick"
	OpRejectUpload = "reject_upload"
	OpAcceptUpload = "accept_upload"
)

// Step is one scenario operation. Ref names an effect across steps:
// submit binds it, later steps resolve it.
type Step struct {
	Op  string `yaml:"op"`
	Ref string `yaml:"ref,omitempty"`

	// Effect payload for submit and update.
	Effect *EffectSpec `yaml:"effect,omitempty"`

	// Repeat is the playback repetition count for start (default 1).
	Repeat int `yaml:"repeat,omitempty"`

	// Advance is the synthetic time step per tick (default: the device
	// update rate). Ticks is the number of ticks to run (default 1).
	Advance Duration `yaml:"advance,omitempty"`
	Ticks   int      `yaml:"ticks,omitempty"`

	// ExpectError marks the step as intentionally failing; the value
	// must be a substring of the returned error. A step without it must
	// succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// EffectSpec is the YAML form of an effect. Kind-specific fields are
// flattened; only the ones matching Kind may be set.
type EffectSpec struct {
	Kind      string   `yaml:"kind"`
	Direction uint16   `yaml:"direction,omitempty"`
	Length    Duration `yaml:"length,omitempty"`
	Delay     Duration `yaml:"delay,omitempty"`

	// Constant.
	Level int16 `yaml:"level,omitempty"`

	// Periodic.
	Waveform  string   `yaml:"waveform,omitempty"`
	Period    Duration `yaml:"period,omitempty"`
	Magnitude int16    `yaml:"magnitude,omitempty"`
	Offset    int16    `yaml:"offset,omitempty"`
	Phase     uint16   `yaml:"phase,omitempty"`

	// Ramp.
	StartLevel int16 `yaml:"start_level,omitempty"`
	EndLevel   int16 `yaml:"end_level,omitempty"`

	// Rumble.
	Strong uint16 `yaml:"strong,omitempty"`
	Weak   uint16 `yaml:"weak,omitempty"`

	// Conditional (applied to both axes).
	RightCoeff      int16  `yaml:"right_coeff,omitempty"`
	LeftCoeff       int16  `yaml:"left_coeff,omitempty"`
	RightSaturation uint16 `yaml:"right_saturation,omitempty"`
	LeftSaturation  uint16 `yaml:"left_saturation,omitempty"`
	Deadband        uint16 `yaml:"deadband,omitempty"`
	Center          int16  `yaml:"center,omitempty"`

	Envelope *EnvelopeSpec `yaml:"envelope,omitempty"`
}

// EnvelopeSpec is the YAML form of an attack/fade envelope.
type EnvelopeSpec struct {
	AttackLength Duration `yaml:"attack_length,omitempty"`
	AttackLevel  uint16   `yaml:"attack_level,omitempty"`
	FadeLength   Duration `yaml:"fade_length,omitempty"`
	FadeLevel    uint16   `yaml:"fade_level,omitempty"`
}

// ToEffect converts the YAML form into a core effect.
func (s *EffectSpec) ToEffect() (effect.Effect, error) {
	kind, err := effect.ParseKind(s.Kind)
	if err != nil {
		return effect.Effect{}, err
	}

	e := effect.Effect{
		Kind:      kind,
		Direction: s.Direction,
		Replay:    effect.Replay{Length: s.Length.Std(), Delay: s.Delay.Std()},
	}

	var env effect.Envelope
	if s.Envelope != nil {
		env = effect.Envelope{
			AttackLength: s.Envelope.AttackLength.Std(),
			AttackLevel:  s.Envelope.AttackLevel,
			FadeLength:   s.Envelope.FadeLength.Std(),
			FadeLevel:    s.Envelope.FadeLevel,
		}
	}

	switch kind {
	case effect.KindConstant:
		e.Constant = &effect.ConstantParams{Level: s.Level, Envelope: env}
	case effect.KindPeriodic:
		wave, err := effect.ParseWaveform(s.Waveform)
		if err != nil {
			return effect.Effect{}, err
		}
		e.Periodic = &effect.PeriodicParams{
			Waveform:  wave,
			Period:    s.Period.Std(),
			Magnitude: s.Magnitude,
			Offset:    s.Offset,
			Phase:     s.Phase,
			Envelope:  env,
		}
	case effect.KindRamp:
		e.Ramp = &effect.RampParams{StartLevel: s.StartLevel, EndLevel: s.EndLevel, Envelope: env}
	case effect.KindRumble:
		e.Rumble = &effect.RumbleParams{StrongMagnitude: s.Strong, WeakMagnitude: s.Weak}
	default:
		cond := effect.ConditionParams{
			RightSaturation: s.RightSaturation,
			LeftSaturation:  s.LeftSaturation,
			RightCoeff:      s.RightCoeff,
			LeftCoeff:       s.LeftCoeff,
			Deadband:        s.Deadband,
			Center:          s.Center,
		}
		e.Condition = &[2]effect.ConditionParams{cond, cond}
	}

	if err := e.Validate(); err != nil {
		return effect.Effect{}, err
	}
	return e, nil
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected to catch typos like "assertion:" for "assertions:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	refs := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, refs); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, refs); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step, refs map[string]bool) error {
	switch st.Op {
	case OpSubmit:
		if st.Ref == "" {
			return fmt.Errorf("steps[%d]: ref is required for submit", index)
		}
		if refs[st.Ref] {
			return fmt.Errorf("steps[%d]: ref %q already bound", index, st.Ref)
		}
		if st.Effect == nil {
			return fmt.Errorf("steps[%d]: effect is required for submit", index)
		}
		if _, err := st.Effect.ToEffect(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		refs[st.Ref] = true

	case OpUpdate:
		if err := requireRef(index, st, refs); err != nil {
			return err
		}
		if st.Effect == nil {
			return fmt.Errorf("steps[%d]: effect is required for update", index)
		}

	case OpStart, OpStop, OpErase, OpRejectUpload, OpAcceptUpload:
		if err := requireRef(index, st, refs); err != nil {
			return err
		}

	case OpTick:
		if st.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must be non-negative", index)
		}

	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

func requireRef(index int, st *Step, refs map[string]bool) error {
	if st.Ref == "" {
		return fmt.Errorf("steps[%d]: ref is required for %s", index, st.Op)
	}
	if !refs[st.Ref] {
		return fmt.Errorf("steps[%d]: ref %q not bound by an earlier submit", index, st.Ref)
	}
	return nil
}
