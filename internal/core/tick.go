package core

import (
	"time"

	"github.com/roach88/ffmix/internal/combine"
	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
	"github.com/roach88/ffmix/internal/lifecycle"
)

// runTick is one scheduler cycle: recognize expiry, advance uncombinable
// lifecycle transitions, recompute the combined and rumble outputs, and
// dispatch, all against a single consistent registry snapshot.
//
// Dispatch order within the tick: per-effect uncombinable transitions
// first (so hardware slot changes settle before the shared channels are
// touched), then combined start/stop, then rumble start/stop. The
// combined and rumble start commands are re-emitted every tick while
// their channel is active, even if numerically unchanged; the stop
// commands are idempotent and suppressed while the channel is already
// stopped.
func (d *Device) runTick(now time.Time) error {
	d.tick++

	if err := d.expire(now); err != nil {
		return err
	}
	if err := d.advanceUncombinable(now); err != nil {
		return err
	}

	fsamples, rsamples := d.sample(now)

	force, active := combine.Combined(fsamples)
	switch {
	case active:
		if err := d.disp.issue(d.tick, device.NewCombined(force)); err != nil {
			return err
		}
		d.combinedActive = true
	case d.combinedActive:
		if err := d.disp.issue(d.tick, device.NewStopCombined()); err != nil {
			return err
		}
		d.combinedActive = false
	}

	rumble, active := combine.Rumble(rsamples)
	switch {
	case active:
		if err := d.disp.issue(d.tick, device.NewRumble(rumble)); err != nil {
			return err
		}
		d.rumbleActive = true
	case d.rumbleActive:
		if err := d.disp.issue(d.tick, device.NewStopRumble()); err != nil {
			return err
		}
		d.rumbleActive = false
	}

	return nil
}

// expire recognizes effects whose playback window ran out between
// ticks. A window with repetitions left restarts; an exhausted effect
// behaves as if userspace stopped it, and for uncombinable effects the
// terminal condition additionally releases the hardware slot (stop
// followed by erase). The registry record itself is retained either way.
func (d *Device) expire(now time.Time) error {
	for _, rec := range d.reg.All() {
		for rec.Expired(now) {
			if rec.Remaining > 1 {
				rec.Remaining--
				rec.StartedAt = rec.StartedAt.Add(rec.Effect.Replay.Delay + rec.Effect.Replay.Length)
				continue
			}

			rec.Playing = false
			rec.Remaining = 0
			if rec.Effect.Kind.Conditional() {
				if err := d.settleResidency(rec); err != nil {
					return err
				}
			}
			break
		}
	}
	return nil
}

// advanceUncombinable issues the tick-path lifecycle commands, per
// affected effect in submission order. The upload handshake already ran
// on the request path, so the transitions decided here are start (for a
// freshly uploaded or resumed effect whose start delay has passed) and
// the re-issued start that carries updated parameters when the
// re-upload policy is off.
func (d *Device) advanceUncombinable(now time.Time) error {
	for _, rec := range d.reg.All() {
		if !rec.Effect.Kind.Conditional() || !rec.Playing {
			continue
		}
		if _, started := rec.Elapsed(now); !started {
			continue // start delay still running
		}

		id := rec.Effect.ID
		switch d.lcm.State(id) {
		case lifecycle.StateResidentStopped:
			rec.Reupload = false
			if err := d.disp.issue(d.tick, device.NewUncomb(device.StartUncombinable, id, &rec.Effect)); err != nil {
				return err
			}
			if err := d.lcm.Started(id); err != nil {
				return err
			}

		case lifecycle.StateResidentPlaying:
			if rec.Reupload && !d.reuploadOnUp {
				// Update without re-provisioning: the start command
				// doubles as the parameter update.
				rec.Reupload = false
				if err := d.disp.issue(d.tick, device.NewUncomb(device.StartUncombinable, id, &rec.Effect)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// sample snapshots the playing effects whose force onset has occurred,
// split by output channel.
func (d *Device) sample(now time.Time) (fsamples, rsamples []combine.Sample) {
	for _, rec := range d.reg.Playing() {
		elapsed, started := rec.Elapsed(now)
		if !started {
			continue
		}
		s := combine.Sample{Effect: &rec.Effect, Elapsed: elapsed}
		switch {
		case rec.Effect.Kind.Combinable():
			fsamples = append(fsamples, s)
		case rec.Effect.Kind == effect.KindRumble:
			rsamples = append(rsamples, s)
		}
	}
	return fsamples, rsamples
}
