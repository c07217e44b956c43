package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
	"github.com/roach88/ffmix/internal/lifecycle"
	"github.com/roach88/ffmix/internal/registry"
)

// Run starts the single-writer decision loop. Blocks until the context
// is cancelled, Close is called, or the back-end commits a protocol
// violation (in which case the ProtocolError is returned).
//
// Must be called from exactly one goroutine. All registry mutation,
// lifecycle transitions and command dispatch happen here.
func (d *Device) Run(ctx context.Context) error {
	slog.Info("device loop starting",
		"handle", fmt.Sprintf("%v", d.handle),
		"update_rate", d.rate,
		"manual_ticks", d.manual,
	)

	if !d.manual {
		go d.pump(ctx)
	}

	defer func() {
		d.queue.Close()
		// Unblock any caller still waiting on a reply.
		for {
			r, ok := d.queue.TryDequeue()
			if !ok {
				break
			}
			if r.reply != nil {
				r.reply <- response{err: ErrClosed}
			}
		}
		if d.release != nil {
			d.release(d.disp.data)
		}
	}()

	for {
		r, ok := d.queue.TryDequeue()
		if ok {
			resp := d.handleRequest(r)
			if r.reply != nil {
				r.reply <- resp
			}
			if IsProtocolError(resp.err) {
				slog.Error("device loop stopping: protocol violation", "error", resp.err)
				return resp.err
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("device loop stopping: context cancelled")
			return ctx.Err()

		case <-d.queue.Wait():
			if d.queue.Closed() && d.queue.Len() == 0 {
				slog.Info("device loop stopping: queue closed")
				return nil
			}
		}
	}
}

// pump converts the wall-clock ticker into tick requests. Runs beside
// the decision loop; the queue serializes its ticks with API requests.
func (d *Device) pump(ctx context.Context) {
	ticker := time.NewTicker(d.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !d.queue.Enqueue(request{op: opTick, now: now}) {
				return
			}
		}
	}
}

// handleRequest routes one request. Called only from the Run goroutine.
func (d *Device) handleRequest(r request) response {
	switch r.op {
	case opSubmit:
		id, err := d.reg.Submit(r.effect)
		return response{id: id, err: err}

	case opUpdate:
		return response{err: d.handleUpdate(r.id, r.effect)}

	case opStart:
		return response{err: d.handleStart(r.id, r.repeat)}

	case opStop:
		return response{err: d.handleStop(r.id)}

	case opErase:
		return response{err: d.handleErase(r.id)}

	case opActive:
		recs := d.reg.Playing()
		out := make([]effect.Effect, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec.Effect)
		}
		return response{active: out}

	case opTick:
		return response{err: d.runTick(r.now)}

	default:
		return response{err: fmt.Errorf("unknown request op %d", r.op)}
	}
}

// handleStart processes a playback start. For uncombinable effects the
// upload handshake runs here, on the request path; the matching start
// command is deferred to the next tick's decision pass.
func (d *Device) handleStart(id, repeat int) error {
	rec, ok := d.reg.Get(id)
	if !ok {
		return fmt.Errorf("start effect %d: %w", id, registry.ErrNotFound)
	}

	if rec.Effect.Kind.Conditional() {
		switch d.lcm.State(id) {
		case lifecycle.StateIdle:
			if err := d.provision(rec); err != nil {
				return err
			}
		case lifecycle.StateResidentStopped, lifecycle.StateResidentPlaying:
			if rec.Reupload && d.reuploadOnUp {
				if err := d.reprovision(rec); err != nil {
					return err
				}
			}
		case lifecycle.StateUploading:
			// Uploads resolve synchronously on this goroutine, so a
			// pending state here means the state machine was corrupted.
			return &lifecycle.TransitionError{ID: id, From: lifecycle.StateUploading, Op: "start"}
		}
	}

	_, err := d.reg.Start(id, repeat, d.now())
	return err
}

// handleStop processes a playback stop. A playing uncombinable effect
// gets its stop command here, synchronously; it stays hardware-resident,
// ready to resume.
func (d *Device) handleStop(id int) error {
	rec, err := d.reg.Stop(id)
	if err != nil {
		return err
	}

	if rec.Effect.Kind.Conditional() && d.lcm.State(id) == lifecycle.StateResidentPlaying {
		return d.issueStop(rec)
	}
	return nil
}

// handleErase removes an effect, settling hardware residency first:
// stop before erase for a playing slot, erase exactly once, never while
// an upload is pending.
func (d *Device) handleErase(id int) error {
	rec, ok := d.reg.Get(id)
	if !ok {
		return fmt.Errorf("erase effect %d: %w", id, registry.ErrNotFound)
	}

	if rec.Effect.Kind.Conditional() {
		if err := d.settleResidency(rec); err != nil {
			return err
		}
	}

	_, err := d.reg.Erase(id)
	return err
}

// handleUpdate replaces effect parameters. With the re-upload policy
// enabled, a resident uncombinable effect is re-provisioned immediately;
// rejection stops the effect and is surfaced to the caller.
func (d *Device) handleUpdate(id int, e effect.Effect) error {
	if err := d.reg.Update(id, e); err != nil {
		return err
	}

	rec, _ := d.reg.Get(id)
	if !rec.Effect.Kind.Conditional() || !d.lcm.Resident(id) {
		return nil
	}
	if !d.reuploadOnUp {
		// Policy off: the next tick re-issues a start command with the
		// new parameters for a playing effect; a stopped one picks them
		// up on its next start.
		return nil
	}

	if err := d.reprovision(rec); err != nil {
		if IsUploadRejected(err) {
			d.reg.Stop(id)
		}
		return err
	}
	return nil
}

// provision runs the upload handshake for an Idle uncombinable effect.
// On rejection the effect never reaches a resident state and the error
// is surfaced to the caller; the core never retries on its own.
func (d *Device) provision(rec *registry.Record) error {
	id := rec.Effect.ID
	if err := d.lcm.BeginUpload(id); err != nil {
		return err
	}

	err := d.disp.issue(d.tick, device.NewUncomb(device.UploadUncombinable, id, &rec.Effect))
	if resErr := d.lcm.UploadResult(id, err == nil); resErr != nil {
		return resErr
	}
	if err != nil {
		return &UploadRejectedError{ID: id, Err: err}
	}

	rec.Reupload = false
	slog.Debug("uncombinable effect uploaded", "effect_id", id)
	return nil
}

// reprovision tears down an effect's current residency and runs a fresh
// upload with the updated parameters, as if freshly started.
func (d *Device) reprovision(rec *registry.Record) error {
	if err := d.settleResidency(rec); err != nil {
		return err
	}
	return d.provision(rec)
}

// settleResidency drives a resident effect back to Idle: stop first if
// playing, then erase. No-op for an Idle effect.
func (d *Device) settleResidency(rec *registry.Record) error {
	id := rec.Effect.ID

	switch d.lcm.State(id) {
	case lifecycle.StateIdle:
		return nil
	case lifecycle.StateUploading:
		return &lifecycle.TransitionError{ID: id, From: lifecycle.StateUploading, Op: "erase"}
	case lifecycle.StateResidentPlaying:
		if err := d.issueStop(rec); err != nil {
			return err
		}
	}
	return d.issueErase(rec)
}

// issueStop sends a stop command for a playing resident effect.
func (d *Device) issueStop(rec *registry.Record) error {
	id := rec.Effect.ID
	if err := d.disp.issue(d.tick, device.NewUncomb(device.StopUncombinable, id, &rec.Effect)); err != nil {
		return err
	}
	return d.lcm.Stopped(id)
}

// issueErase releases a stopped resident effect's slot.
func (d *Device) issueErase(rec *registry.Record) error {
	id := rec.Effect.ID
	if err := d.disp.issue(d.tick, device.NewUncomb(device.EraseUncombinable, id, &rec.Effect)); err != nil {
		return err
	}
	return d.lcm.Erased(id)
}
