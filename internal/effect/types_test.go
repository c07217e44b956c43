package effect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Groups(t *testing.T) {
	assert.True(t, KindConstant.Combinable())
	assert.True(t, KindPeriodic.Combinable())
	assert.True(t, KindRamp.Combinable())
	assert.False(t, KindRumble.Combinable())
	assert.False(t, KindSpring.Combinable())

	assert.True(t, KindSpring.Conditional())
	assert.True(t, KindDamper.Conditional())
	assert.True(t, KindFriction.Conditional())
	assert.True(t, KindInertia.Conditional())
	assert.False(t, KindConstant.Conditional())
	assert.False(t, KindRumble.Conditional())
}

func TestParseKind_RoundTrip(t *testing.T) {
	for k := KindConstant; k <= KindInertia; k++ {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("bogus")
	assert.Error(t, err)
}

func TestParseWaveform_RoundTrip(t *testing.T) {
	for w := WaveSine; w <= WaveSawDown; w++ {
		got, err := ParseWaveform(w.String())
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}

	_, err := ParseWaveform("noise")
	assert.Error(t, err)
}

func TestEffect_Validate(t *testing.T) {
	tests := []struct {
		name    string
		effect  Effect
		wantErr string
	}{
		{
			name:   "valid constant",
			effect: Effect{Kind: KindConstant, Constant: &ConstantParams{Level: 100}},
		},
		{
			name: "valid periodic",
			effect: Effect{Kind: KindPeriodic, Periodic: &PeriodicParams{
				Waveform: WaveSine, Period: 100 * time.Millisecond, Magnitude: 500,
			}},
		},
		{
			name: "valid ramp",
			effect: Effect{
				Kind:   KindRamp,
				Ramp:   &RampParams{StartLevel: 0, EndLevel: 1000},
				Replay: Replay{Length: time.Second},
			},
		},
		{
			name:   "valid rumble",
			effect: Effect{Kind: KindRumble, Rumble: &RumbleParams{StrongMagnitude: 100}},
		},
		{
			name:   "valid spring",
			effect: Effect{Kind: KindSpring, Condition: &[2]ConditionParams{}},
		},
		{
			name:    "missing params",
			effect:  Effect{Kind: KindConstant},
			wantErr: "missing constant parameters",
		},
		{
			name: "wrong params for kind",
			effect: Effect{
				Kind:     KindConstant,
				Constant: &ConstantParams{},
				Rumble:   &RumbleParams{},
			},
			wantErr: "exactly one parameter block",
		},
		{
			name: "zero period",
			effect: Effect{Kind: KindPeriodic, Periodic: &PeriodicParams{
				Waveform: WaveSine, Magnitude: 10,
			}},
			wantErr: "period must be positive",
		},
		{
			name: "unknown waveform",
			effect: Effect{Kind: KindPeriodic, Periodic: &PeriodicParams{
				Waveform: Waveform(99), Period: time.Second,
			}},
			wantErr: "unknown waveform",
		},
		{
			name:    "infinite ramp",
			effect:  Effect{Kind: KindRamp, Ramp: &RampParams{EndLevel: 10}},
			wantErr: "length must be finite",
		},
		{
			name:    "unknown kind",
			effect:  Effect{Kind: Kind(42)},
			wantErr: "unknown effect kind",
		},
		{
			name: "negative window",
			effect: Effect{
				Kind:     KindConstant,
				Constant: &ConstantParams{},
				Replay:   Replay{Length: -time.Second},
			},
			wantErr: "negative playback window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.effect.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEffect_Clone_IsDeep(t *testing.T) {
	orig := &Effect{
		Kind:      KindConstant,
		Direction: 0x4000,
		Constant:  &ConstantParams{Level: 123},
	}

	c := orig.Clone()
	require.NotNil(t, c)
	c.Constant.Level = 999
	c.Direction = 0

	assert.Equal(t, int16(123), orig.Constant.Level)
	assert.Equal(t, uint16(0x4000), orig.Direction)
}

func TestEffect_Clone_Nil(t *testing.T) {
	var e *Effect
	assert.Nil(t, e.Clone())
}
