package trace

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ffmix/internal/device"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestBeginRunNormalizesLabel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Decomposed e + combining acute; the stored label uses the
	// composed form.
	run, err := s.BeginRun(ctx, "re\u0301sume\u0301", "wheel0", 10*time.Millisecond, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "r\u00e9sum\u00e9", run.Label)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Label, got.Label)
	assert.Equal(t, 10*time.Millisecond, got.UpdateRate)
}

func TestRunIDsOrderByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.BeginRun(ctx, "first", "dev", time.Millisecond, time.Now())
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond) // UUIDv7 has millisecond precision
	second, err := s.BeginRun(ctx, "second", "dev", time.Millisecond, time.Now())
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestWriteAndReadCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "session", "dev", time.Millisecond, time.Now())
	require.NoError(t, err)

	records := []Record{
		{Tick: 1, Seq: 1, Kind: device.UploadUncombinable, EffectID: 3},
		{Tick: 1, Seq: 2, Kind: device.StartCombined, Simple: &device.SimpleForce{X: 40, Y: -7}},
		{Tick: 2, Seq: 3, Kind: device.StartRumble, Rumble: &device.RumbleForce{Strong: 300, Weak: 130, StrongDir: 0xC000, WeakDir: 0xC000}},
		{Tick: 3, Seq: 4, Kind: device.UploadUncombinable, EffectID: 4, Err: "no free hardware slot"},
		{Tick: 3, Seq: 5, Kind: device.StopCombined},
	}
	for _, rec := range records {
		require.NoError(t, s.WriteCommand(ctx, run.ID, rec))
	}

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, len(records))

	assert.Equal(t, device.UploadUncombinable, got[0].Kind)
	assert.Equal(t, 3, got[0].EffectID)
	assert.Nil(t, got[0].Simple)

	require.NotNil(t, got[1].Simple)
	assert.Equal(t, int32(40), got[1].Simple.X)
	assert.Equal(t, int32(-7), got[1].Simple.Y)

	require.NotNil(t, got[2].Rumble)
	assert.Equal(t, uint32(300), got[2].Rumble.Strong)
	assert.Equal(t, uint16(0xC000), got[2].Rumble.WeakDir)

	assert.Equal(t, "no free hardware slot", got[3].Err)
	assert.Equal(t, device.StopCombined, got[4].Kind)
	assert.Nil(t, got[4].Simple)
}

func TestWriteCommandIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "session", "dev", time.Millisecond, time.Now())
	require.NoError(t, err)

	rec := Record{Tick: 1, Seq: 1, Kind: device.StartCombined, Simple: &device.SimpleForce{X: 10}}
	require.NoError(t, s.WriteCommand(ctx, run.ID, rec))
	require.NoError(t, s.WriteCommand(ctx, run.ID, rec))

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReadRunEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "empty", "dev", time.Millisecond, time.Now())
	require.NoError(t, err)

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecorderObserve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "recorded", "dev", time.Millisecond, time.Now())
	require.NoError(t, err)
	rec := NewRecorder(s, run.ID)
	assert.Equal(t, run.ID, rec.RunID())

	rec.Observe(1, 1, device.NewCombined(device.SimpleForce{X: 5}), nil)
	rec.Observe(1, 2, device.NewStopCombined(), nil)

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(5), got[0].Simple.X)
	assert.Equal(t, device.StopCombined, got[1].Kind)
}
