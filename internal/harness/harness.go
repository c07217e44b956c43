// Package harness provides a conformance harness for device sessions.
//
// A scenario is a YAML document describing one deterministic session:
// a simulated back-end, a sequence of submission and tick steps on a
// manual-tick device, and assertions over the resulting command trace.
// Synthetic time makes runs byte-identical, so traces can also be
// compared against golden files.
package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/ffmix/internal/backend/sim"
	"github.com/roach88/ffmix/internal/core"
	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/testutil"
)

// Harness drives one scenario against a device.
type Harness struct {
	dev     *core.Device
	backend *sim.Backend
	clock   *testutil.SyntheticTime
	result  *Result
}

// Run executes a scenario and returns its result. A scenario run
// failure (broken device setup) is an error; failed steps and
// assertions are reported through the result instead.
func Run(scenario *Scenario) (*Result, error) {
	backend := sim.New(scenario.Device.Slots)
	clock := testutil.NewSyntheticTime(time.Time{})
	result := NewResult()

	observer := func(tick, seq int64, cmd *device.Command, err error) {
		result.Trace = append(result.Trace, newTraceEvent(tick, seq, cmd, err))
	}

	opts := []core.Option{
		core.WithManualTicks(),
		core.WithNowFunc(clock.Now),
		core.WithObserver(observer),
	}
	if scenario.Device.ReuploadOnUpdate != nil {
		opts = append(opts, core.WithReuploadOnUpdate(*scenario.Device.ReuploadOnUpdate))
	}

	dev, err := core.Register(scenario.Name, nil, backend.Control, scenario.Device.UpdateRate.Std(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- dev.Run(context.Background()) }()

	h := &Harness{dev: dev, backend: backend, clock: clock, result: result}
	for i, step := range scenario.Steps {
		if err := h.executeStep(step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Op, err))
			break
		}
	}

	dev.Close()
	if err := <-done; err != nil {
		result.AddError(fmt.Sprintf("device loop: %v", err))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step, honoring its expect_error clause.
func (h *Harness) executeStep(step Step) error {
	switch step.Op {
	case OpSubmit:
		e, err := step.Effect.ToEffect()
		if err != nil {
			return h.verdict(step, err)
		}
		id, err := h.dev.Submit(e)
		if err == nil {
			h.result.Refs[step.Ref] = id
		}
		return h.verdict(step, err)

	case OpUpdate:
		e, err := step.Effect.ToEffect()
		if err != nil {
			return h.verdict(step, err)
		}
		return h.verdict(step, h.dev.Update(h.result.Refs[step.Ref], e))

	case OpStart:
		repeat := step.Repeat
		if repeat == 0 {
			repeat = 1
		}
		return h.verdict(step, h.dev.Start(h.result.Refs[step.Ref], repeat))

	case OpStop:
		return h.verdict(step, h.dev.Stop(h.result.Refs[step.Ref]))

	case OpErase:
		return h.verdict(step, h.dev.Erase(h.result.Refs[step.Ref]))

	case OpTick:
		ticks := step.Ticks
		if ticks == 0 {
			ticks = 1
		}
		advance := step.Advance.Std()
		if advance == 0 {
			advance = h.dev.UpdateRate()
		}
		for i := 0; i < ticks; i++ {
			if err := h.verdict(step, h.dev.Step(h.clock.Advance(advance))); err != nil {
				return err
			}
		}
		return nil

	case OpRejectUpload:
		h.backend.RejectUpload(h.result.Refs[step.Ref], nil)
		return nil

	case OpAcceptUpload:
		h.backend.AcceptUpload(h.result.Refs[step.Ref])
		return nil

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// verdict applies a step's expect_error clause to an operation outcome.
func (h *Harness) verdict(step Step, err error) error {
	if step.ExpectError == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected error containing %q, got success", step.ExpectError)
	}
	if !strings.Contains(err.Error(), step.ExpectError) {
		return fmt.Errorf("expected error containing %q, got %q", step.ExpectError, err.Error())
	}
	return nil
}

// newTraceEvent converts a dispatched command into its trace form.
func newTraceEvent(tick, seq int64, cmd *device.Command, err error) TraceEvent {
	event := TraceEvent{Tick: tick, Seq: seq, Command: cmd.Kind.String()}
	if cmd.Uncomb != nil {
		event.EffectID = cmd.Uncomb.ID
	}
	if cmd.Simple != nil {
		x, y := cmd.Simple.X, cmd.Simple.Y
		event.X, event.Y = &x, &y
	}
	if cmd.Rumble != nil {
		strong, weak := cmd.Rumble.Strong, cmd.Rumble.Weak
		event.Strong, event.Weak = &strong, &weak
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}
