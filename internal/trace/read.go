package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/ffmix/internal/device"
)

// ListRuns returns all recorded runs, newest first. Returns an empty
// slice (not nil) when the database holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, device, update_rate_ns, started_at
		FROM runs
		ORDER BY id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves a single run by id. Returns sql.ErrNoRows if absent.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, device, update_rate_ns, started_at
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ReadRun returns a run's commands in dispatch order. Returns an empty
// slice (not nil) for a run with no commands.
func (s *Store) ReadRun(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, seq, kind, effect_id, x, y, strong, weak, strong_dir, weak_dir, error
		FROM commands
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		rateNS    int64
		startedAt string
	)
	if err := row.Scan(&run.ID, &run.Label, &run.Device, &rateNS, &startedAt); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.UpdateRate = time.Duration(rateNS)

	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: parse started_at: %w", err)
	}
	run.StartedAt = ts
	return run, nil
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                Record
		kind               string
		effectID           sql.NullInt64
		x, y               sql.NullInt64
		strong, weak       sql.NullInt64
		strongDir, weakDir sql.NullInt64
		errText            sql.NullString
	)
	err := row.Scan(&rec.Tick, &rec.Seq, &kind,
		&effectID, &x, &y, &strong, &weak, &strongDir, &weakDir, &errText)
	if err != nil {
		return Record{}, fmt.Errorf("scan command: %w", err)
	}

	rec.Kind, err = device.ParseCommandKind(kind)
	if err != nil {
		return Record{}, fmt.Errorf("scan command: %w", err)
	}

	if effectID.Valid {
		rec.EffectID = int(effectID.Int64)
	}
	if x.Valid || y.Valid {
		rec.Simple = &device.SimpleForce{X: int32(x.Int64), Y: int32(y.Int64)}
	}
	if strong.Valid || weak.Valid {
		rec.Rumble = &device.RumbleForce{
			Strong:    uint32(strong.Int64),
			Weak:      uint32(weak.Int64),
			StrongDir: uint16(strongDir.Int64),
			WeakDir:   uint16(weakDir.Int64),
		}
	}
	if errText.Valid {
		rec.Err = errText.String
	}
	return rec, nil
}
