package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ffmix/internal/backend/sim"
	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
	"github.com/roach88/ffmix/internal/testutil"
)

// dirRight encodes "pull right": the decoded vector is (+level, 0).
const dirRight = 0xC000

func constantEffect(level int16, replay effect.Replay) effect.Effect {
	return effect.Effect{
		Kind:      effect.KindConstant,
		Direction: dirRight,
		Replay:    replay,
		Constant:  &effect.ConstantParams{Level: level},
	}
}

func rumbleEffect(strong, weak uint16) effect.Effect {
	return effect.Effect{
		Kind:      effect.KindRumble,
		Direction: dirRight,
		Rumble:    &effect.RumbleParams{StrongMagnitude: strong, WeakMagnitude: weak},
	}
}

func springEffect(replay effect.Replay) effect.Effect {
	return effect.Effect{
		Kind:   effect.KindSpring,
		Replay: replay,
		Condition: &[2]effect.ConditionParams{
			{RightSaturation: 0x7fff, LeftSaturation: 0x7fff, RightCoeff: 0x200, LeftCoeff: 0x200},
			{},
		},
	}
}

// newDevice registers a manual-tick device on a synthetic clock and
// starts its loop. The returned channel carries Run's result; the loop
// is shut down by t.Cleanup.
func newDevice(t *testing.T, b *sim.Backend, opts ...Option) (*Device, *testutil.SyntheticTime, <-chan error) {
	t.Helper()

	clk := testutil.NewSyntheticTime(time.Time{})
	base := []Option{WithManualTicks(), WithNowFunc(clk.Now)}
	d, err := Register("test-device", nil, b.Control, 10*time.Millisecond, append(base, opts...)...)
	require.NoError(t, err)

	errc := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errc <- d.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		d.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("device loop did not stop")
		}
	})
	return d, clk, errc
}

func TestRegisterRequiresControl(t *testing.T) {
	_, err := Register("dev", nil, nil, 0)
	assert.ErrorIs(t, err, ErrNilControl)
}

func TestRegisterClampsUpdateRate(t *testing.T) {
	b := sim.New(0)

	d, err := Register("dev", nil, b.Control, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, MinUpdateRate, d.UpdateRate())

	d, err = Register("dev", nil, b.Control, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultUpdateRate, d.UpdateRate())

	d, err = Register("dev", nil, b.Control, 25*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, d.UpdateRate())
}

func TestCombinedForceSumsActiveEffects(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	for _, level := range []int16{50, -20, 10} {
		id, err := d.Submit(constantEffect(level, effect.Replay{}))
		require.NoError(t, err)
		require.NoError(t, d.Start(id, 1))
	}

	require.NoError(t, d.Step(clk.Now()))

	last := b.LastOfKind(device.StartCombined)
	require.NotNil(t, last)
	assert.Equal(t, int32(40), last.Simple.X)
	assert.Equal(t, int32(0), last.Simple.Y)
}

func TestCombinedForceClampsAtLevelRange(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	for i := 0; i < 2; i++ {
		id, err := d.Submit(constantEffect(effect.MaxLevel, effect.Replay{}))
		require.NoError(t, err)
		require.NoError(t, d.Start(id, 1))
	}

	require.NoError(t, d.Step(clk.Now()))

	last := b.LastOfKind(device.StartCombined)
	require.NotNil(t, last)
	assert.Equal(t, int32(effect.MaxLevel), last.Simple.X)
}

func TestZeroLevelEffectKeepsChannelActive(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(0, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))

	require.NoError(t, d.Step(clk.Now()))

	last := b.LastOfKind(device.StartCombined)
	require.NotNil(t, last)
	assert.Equal(t, int32(0), last.Simple.X)
	assert.Equal(t, int32(0), last.Simple.Y)
}

func TestCombinedStartReemittedEveryTick(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))

	require.NoError(t, d.Step(clk.Now()))
	require.NoError(t, d.Step(clk.Advance(10*time.Millisecond)))
	require.NoError(t, d.Step(clk.Advance(10*time.Millisecond)))

	assert.Len(t, b.OfKind(device.StartCombined), 3)
}

func TestStopCombinedIssuedOnceOnLastEffectStop(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))
	require.NoError(t, d.Step(clk.Now()))

	require.NoError(t, d.Stop(id))
	require.NoError(t, d.Step(clk.Advance(10*time.Millisecond)))
	require.NoError(t, d.Step(clk.Advance(10*time.Millisecond)))

	assert.Len(t, b.OfKind(device.StopCombined), 1)
	assert.Equal(t, []device.CommandKind{
		device.StartCombined,
		device.StopCombined,
	}, b.Kinds())
}

func TestRumbleMixedSeparatelyFromForces(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	cid, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(cid, 1))

	for _, params := range [][2]uint16{{100, 50}, {200, 80}} {
		id, err := d.Submit(rumbleEffect(params[0], params[1]))
		require.NoError(t, err)
		require.NoError(t, d.Start(id, 1))
	}

	require.NoError(t, d.Step(clk.Now()))

	rumble := b.LastOfKind(device.StartRumble)
	require.NotNil(t, rumble)
	assert.Equal(t, uint32(300), rumble.Rumble.Strong)
	assert.Equal(t, uint32(130), rumble.Rumble.Weak)

	combined := b.LastOfKind(device.StartCombined)
	require.NotNil(t, combined)
	assert.Equal(t, int32(50), combined.Simple.X)
}

func TestStartDelayPostponesForceOnset(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{Delay: 20 * time.Millisecond}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))

	require.NoError(t, d.Step(clk.Now()))
	assert.Empty(t, b.OfKind(device.StartCombined))

	require.NoError(t, d.Step(clk.Advance(25*time.Millisecond)))
	assert.Len(t, b.OfKind(device.StartCombined), 1)
}

func TestFiniteWindowExpires(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{Length: 30 * time.Millisecond}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))

	require.NoError(t, d.Step(clk.Now()))
	require.NoError(t, d.Step(clk.Advance(20*time.Millisecond)))
	assert.Len(t, b.OfKind(device.StartCombined), 2)

	require.NoError(t, d.Step(clk.Advance(20*time.Millisecond)))
	assert.Len(t, b.OfKind(device.StopCombined), 1)

	// The record survives expiry and can be restarted.
	require.NoError(t, d.Start(id, 1))
	require.NoError(t, d.Step(clk.Now()))
	assert.Len(t, b.OfKind(device.StartCombined), 3)
}

func TestRepeatRestartsPlaybackWindow(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{Length: 30 * time.Millisecond}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 2))

	require.NoError(t, d.Step(clk.Now()))
	// First window [0ms,30ms) has expired; the second is 10ms in.
	require.NoError(t, d.Step(clk.Advance(40*time.Millisecond)))
	assert.Empty(t, b.OfKind(device.StopCombined))

	// Second window expired too.
	require.NoError(t, d.Step(clk.Advance(30*time.Millisecond)))
	assert.Len(t, b.OfKind(device.StopCombined), 1)
}

func TestUpdateTakesHoldNextTick(t *testing.T) {
	b := sim.New(0)
	d, clk, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))
	require.NoError(t, d.Step(clk.Now()))

	require.NoError(t, d.Update(id, constantEffect(30, effect.Replay{})))
	require.NoError(t, d.Step(clk.Advance(10*time.Millisecond)))

	last := b.LastOfKind(device.StartCombined)
	require.NotNil(t, last)
	assert.Equal(t, int32(30), last.Simple.X)
}

func TestUpdateRejectsKindChange(t *testing.T) {
	b := sim.New(0)
	d, _, _ := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)

	err = d.Update(id, rumbleEffect(100, 50))
	assert.Error(t, err)
}

func TestSubmitRejectsMalformedEffect(t *testing.T) {
	b := sim.New(0)
	d, _, _ := newDevice(t, b)

	_, err := d.Submit(effect.Effect{Kind: effect.KindConstant})
	assert.Error(t, err)
	_, err = d.Submit(effect.Effect{Kind: effect.KindPeriodic, Periodic: &effect.PeriodicParams{Waveform: effect.WaveSine}})
	assert.Error(t, err)
}

func TestActiveSnapshot(t *testing.T) {
	b := sim.New(0)
	d, _, _ := newDevice(t, b)

	first, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	second, err := d.Submit(rumbleEffect(100, 0))
	require.NoError(t, err)
	require.NoError(t, d.Start(second, 1))

	active, err := d.Active()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second, active[0].ID)

	require.NoError(t, d.Start(first, 1))
	active, err = d.Active()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first, active[0].ID)
	assert.Equal(t, second, active[1].ID)
}

func TestOperationsOnUnknownIDFail(t *testing.T) {
	b := sim.New(0)
	d, _, _ := newDevice(t, b)

	assert.Error(t, d.Start(99, 1))
	assert.Error(t, d.Stop(99))
	assert.Error(t, d.Erase(99))
	assert.Error(t, d.Update(99, constantEffect(1, effect.Replay{})))
}

func TestProtocolViolationStopsLoop(t *testing.T) {
	b := sim.New(0)
	boom := errors.New("bus error")
	b.FailKind(device.StartCombined, boom)

	d, clk, errc := newDevice(t, b)

	id, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))

	err = d.Step(clk.Now())
	require.True(t, IsProtocolError(err))
	assert.ErrorIs(t, err, boom)

	select {
	case runErr := <-errc:
		assert.True(t, IsProtocolError(runErr))
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on protocol violation")
	}

	_, err = d.Submit(constantEffect(1, effect.Replay{}))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseRejectsFurtherRequests(t *testing.T) {
	b := sim.New(0)
	d, _, errc := newDevice(t, b)

	d.Close()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on close")
	}

	_, err := d.Submit(constantEffect(1, effect.Replay{}))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.Start(1, 1), ErrClosed)
}

func TestDataReleaseRunsOnShutdown(t *testing.T) {
	b := sim.New(0)
	released := make(chan any, 1)

	clk := testutil.NewSyntheticTime(time.Time{})
	d, err := Register("dev", "backend-context", b.Control, 0,
		WithManualTicks(),
		WithNowFunc(clk.Now),
		WithDataRelease(func(data any) { released <- data }),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	d.Close()
	require.NoError(t, <-done)

	select {
	case data := <-released:
		assert.Equal(t, "backend-context", data)
	default:
		t.Fatal("release callback did not run")
	}
}

func TestObserverSeesEveryCommand(t *testing.T) {
	b := sim.New(0)

	type seen struct {
		tick, seq int64
		kind      device.CommandKind
	}
	var got []seen
	obs := func(tick, seq int64, cmd *device.Command, err error) {
		got = append(got, seen{tick: tick, seq: seq, kind: cmd.Kind})
	}

	d, clk, _ := newDevice(t, b, WithObserver(obs))

	id, err := d.Submit(constantEffect(50, effect.Replay{}))
	require.NoError(t, err)
	require.NoError(t, d.Start(id, 1))
	require.NoError(t, d.Step(clk.Now()))
	require.NoError(t, d.Stop(id))
	require.NoError(t, d.Step(clk.Advance(10*time.Millisecond)))

	require.Len(t, got, 2)
	assert.Equal(t, device.StartCombined, got[0].kind)
	assert.Equal(t, device.StopCombined, got[1].kind)
	assert.Equal(t, int64(1), got[0].seq)
	assert.Equal(t, int64(2), got[1].seq)
	assert.Equal(t, int64(1), got[0].tick)
	assert.Equal(t, int64(2), got[1].tick)
	assert.Equal(t, int64(2), d.Seq())
}
