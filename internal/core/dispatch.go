package core

import (
	"log/slog"

	"github.com/roach88/ffmix/internal/device"
)

// CommandObserver is notified after every dispatched command with the
// tick it belongs to, its sequence number and the back-end's verdict.
// Observers run synchronously on the decision goroutine and must copy
// the command if they retain it (trace recorders do).
type CommandObserver func(tick, seq int64, cmd *device.Command, err error)

// dispatcher is the single serialization point to the back-end: one
// callback invocation per decided command, success/failure propagated
// straight back to the caller's state machine. A failed upload is never
// retried automatically; a fresh start request is the retry mechanism.
type dispatcher struct {
	handle    any
	data      any
	control   device.ControlFunc
	clock     *Clock
	observers []CommandObserver
}

// issue invokes the back-end exactly once for cmd.
//
// Returns the back-end's error verbatim for upload commands, a
// ProtocolError if the back-end fails an infallible command kind, nil
// otherwise.
func (p *dispatcher) issue(tick int64, cmd *device.Command) error {
	seq := p.clock.Next()
	err := p.control(p.data, cmd)

	for _, obs := range p.observers {
		obs(tick, seq, cmd, err)
	}

	if err == nil {
		return nil
	}

	if cmd.Kind.CanFail() {
		slog.Debug("upload rejected by back-end",
			"tick", tick,
			"seq", seq,
			"effect_id", cmd.Uncomb.ID,
			"error", err,
		)
		return err
	}

	effectID := 0
	if cmd.Uncomb != nil {
		effectID = cmd.Uncomb.ID
	}
	slog.Error("back-end failed infallible command",
		"tick", tick,
		"seq", seq,
		"command", cmd.Kind.String(),
		"effect_id", effectID,
		"error", err,
	)
	return &ProtocolError{Kind: cmd.Kind, EffectID: effectID, Err: err}
}
