package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ffmix/internal/device"
)

// Run describes one recorded session.
type Run struct {
	ID         string
	Label      string
	Device     string
	UpdateRate time.Duration
	StartedAt  time.Time
}

// Record is one dispatched command as stored. Exactly the payload
// columns matching Kind are meaningful; Err is empty on success.
type Record struct {
	Tick int64
	Seq  int64
	Kind device.CommandKind

	EffectID int
	Simple   *device.SimpleForce
	Rumble   *device.RumbleForce

	Err string
}

// BeginRun creates a run row and returns it. The run id is a UUIDv7 so
// lexical ordering matches creation order; the label is NFC-normalized
// so the same visible string always compares equal.
func (s *Store) BeginRun(ctx context.Context, label, deviceDesc string, updateRate time.Duration, startedAt time.Time) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("begin run: generate id: %w", err)
	}

	run := Run{
		ID:         id.String(),
		Label:      norm.NFC.String(label),
		Device:     deviceDesc,
		UpdateRate: updateRate,
		StartedAt:  startedAt.UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, device, update_rate_ns, started_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Label,
		run.Device,
		int64(run.UpdateRate),
		run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// WriteCommand inserts one command record. Uses ON CONFLICT DO NOTHING
// on (run_id, seq) so a replayed recording is idempotent.
func (s *Store) WriteCommand(ctx context.Context, runID string, rec Record) error {
	var (
		effectID           any
		x, y               any
		strong, weak       any
		strongDir, weakDir any
		errText            any
	)

	switch rec.Kind {
	case device.StartCombined:
		if rec.Simple != nil {
			x, y = rec.Simple.X, rec.Simple.Y
		}
	case device.StartRumble:
		if rec.Rumble != nil {
			strong, weak = rec.Rumble.Strong, rec.Rumble.Weak
			strongDir, weakDir = rec.Rumble.StrongDir, rec.Rumble.WeakDir
		}
	case device.StartUncombinable, device.StopUncombinable,
		device.UploadUncombinable, device.EraseUncombinable:
		effectID = rec.EffectID
	}
	if rec.Err != "" {
		errText = rec.Err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands
		(run_id, tick, seq, kind, effect_id, x, y, strong, weak, strong_dir, weak_dir, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Tick,
		rec.Seq,
		rec.Kind.String(),
		effectID,
		x, y,
		strong, weak,
		strongDir, weakDir,
		errText,
	)
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}
