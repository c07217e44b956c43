package combine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ffmix/internal/effect"
)

func TestApplyEnvelope_ZeroEnvelopeIsIdentity(t *testing.T) {
	assert.Equal(t, int32(500), applyEnvelope(effect.Envelope{}, 500, 0, time.Second))
	assert.Equal(t, int32(-500), applyEnvelope(effect.Envelope{}, -500, 0, time.Second))
}

func TestApplyEnvelope_Attack(t *testing.T) {
	env := effect.Envelope{AttackLength: 100 * time.Millisecond, AttackLevel: 0}

	assert.Equal(t, int32(0), applyEnvelope(env, 1000, 0, time.Second))
	assert.Equal(t, int32(500), applyEnvelope(env, 1000, 50*time.Millisecond, time.Second))
	// Attack complete: nominal level.
	assert.Equal(t, int32(1000), applyEnvelope(env, 1000, 100*time.Millisecond, time.Second))
}

func TestApplyEnvelope_AttackFromNonZeroLevel(t *testing.T) {
	env := effect.Envelope{AttackLength: 100 * time.Millisecond, AttackLevel: 400}
	assert.Equal(t, int32(400), applyEnvelope(env, 1000, 0, time.Second))
	assert.Equal(t, int32(700), applyEnvelope(env, 1000, 50*time.Millisecond, time.Second))
}

func TestApplyEnvelope_Fade(t *testing.T) {
	env := effect.Envelope{FadeLength: 100 * time.Millisecond, FadeLevel: 0}
	length := time.Second

	assert.Equal(t, int32(1000), applyEnvelope(env, 1000, 900*time.Millisecond, length))
	assert.Equal(t, int32(500), applyEnvelope(env, 1000, 950*time.Millisecond, length))
	assert.Equal(t, int32(0), applyEnvelope(env, 1000, length, length))
}

func TestApplyEnvelope_NoFadeOnInfiniteWindow(t *testing.T) {
	env := effect.Envelope{FadeLength: 100 * time.Millisecond, FadeLevel: 0}
	assert.Equal(t, int32(1000), applyEnvelope(env, 1000, time.Hour, 0))
}

func TestApplyEnvelope_PreservesSign(t *testing.T) {
	env := effect.Envelope{AttackLength: 100 * time.Millisecond, AttackLevel: 0}
	assert.Equal(t, int32(-500), applyEnvelope(env, -1000, 50*time.Millisecond, time.Second))
}

func TestApplyEnvelope_ZeroLevel(t *testing.T) {
	env := effect.Envelope{AttackLength: 100 * time.Millisecond, AttackLevel: 200}
	assert.Equal(t, int32(0), applyEnvelope(env, 0, 50*time.Millisecond, time.Second))
}
