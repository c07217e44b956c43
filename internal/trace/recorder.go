package trace

import (
	"context"
	"log/slog"

	"github.com/roach88/ffmix/internal/device"
)

// Recorder persists dispatched commands into a run. Its Observe method
// satisfies the core's command-observer shape; it runs on the decision
// goroutine, so write failures are logged rather than propagated (a
// broken trace must not stop force output).
type Recorder struct {
	store *Store
	runID string
}

// NewRecorder binds a recorder to an existing run.
func NewRecorder(store *Store, runID string) *Recorder {
	return &Recorder{store: store, runID: runID}
}

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Observe records one dispatched command.
func (r *Recorder) Observe(tick, seq int64, cmd *device.Command, cmdErr error) {
	rec := Record{Tick: tick, Seq: seq, Kind: cmd.Kind}
	if cmd.Uncomb != nil {
		rec.EffectID = cmd.Uncomb.ID
	}
	if cmd.Simple != nil {
		f := *cmd.Simple
		rec.Simple = &f
	}
	if cmd.Rumble != nil {
		f := *cmd.Rumble
		rec.Rumble = &f
	}
	if cmdErr != nil {
		rec.Err = cmdErr.Error()
	}

	if err := r.store.WriteCommand(context.Background(), r.runID, rec); err != nil {
		slog.Error("trace recorder write failed",
			"run_id", r.runID,
			"seq", seq,
			"error", err,
		)
	}
}
