package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/trace"
)

func TestLintProtocolCleanTrace(t *testing.T) {
	records := []trace.Record{
		{Tick: 1, Seq: 1, Kind: device.UploadUncombinable, EffectID: 3},
		{Tick: 1, Seq: 2, Kind: device.StartUncombinable, EffectID: 3},
		{Tick: 1, Seq: 3, Kind: device.StartCombined, Simple: &device.SimpleForce{X: 10}},
		{Tick: 2, Seq: 4, Kind: device.StopCombined},
		{Tick: 3, Seq: 5, Kind: device.StopUncombinable, EffectID: 3},
		{Tick: 3, Seq: 6, Kind: device.EraseUncombinable, EffectID: 3},
	}

	assert.Empty(t, lintProtocol(records))
}

func TestLintProtocolRejectedUploadIsClean(t *testing.T) {
	// A failed upload is the one legal failure; the slot stays free and a
	// later retry may succeed.
	records := []trace.Record{
		{Tick: 1, Seq: 1, Kind: device.UploadUncombinable, EffectID: 3, Err: "no free slots"},
		{Tick: 2, Seq: 2, Kind: device.UploadUncombinable, EffectID: 3},
		{Tick: 2, Seq: 3, Kind: device.StartUncombinable, EffectID: 3},
	}

	assert.Empty(t, lintProtocol(records))
}

func TestLintProtocolStartWithoutUpload(t *testing.T) {
	records := []trace.Record{
		{Tick: 1, Seq: 1, Kind: device.StartUncombinable, EffectID: 9},
	}

	violations := lintProtocol(records)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "effect 9 started without an upload")
}

func TestLintProtocolEraseWhilePlaying(t *testing.T) {
	records := []trace.Record{
		{Tick: 1, Seq: 1, Kind: device.UploadUncombinable, EffectID: 4},
		{Tick: 1, Seq: 2, Kind: device.StartUncombinable, EffectID: 4},
		{Tick: 2, Seq: 3, Kind: device.EraseUncombinable, EffectID: 4},
	}

	violations := lintProtocol(records)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "effect 4 erased while playing")
}

func TestLintProtocolRedundantStops(t *testing.T) {
	records := []trace.Record{
		{Tick: 1, Seq: 1, Kind: device.StopCombined},
		{Tick: 1, Seq: 2, Kind: device.StopRumble},
	}

	violations := lintProtocol(records)
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0], "redundant stop of an inactive combined channel")
	assert.Contains(t, violations[1], "redundant stop of an inactive rumble channel")
}

func TestLintProtocolInfallibleFailure(t *testing.T) {
	records := []trace.Record{
		{Tick: 1, Seq: 1, Kind: device.StartCombined, Err: "bus error"},
	}

	violations := lintProtocol(records)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], `infallible command carries failure "bus error"`)
}

func TestLintProtocolSequenceRegression(t *testing.T) {
	records := []trace.Record{
		{Tick: 1, Seq: 5, Kind: device.StartCombined},
		{Tick: 1, Seq: 5, Kind: device.StopCombined},
		{Tick: 0, Seq: 6, Kind: device.StartCombined},
	}

	violations := lintProtocol(records)
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0], "sequence number did not increase")
	assert.Contains(t, violations[1], "tick went backwards")
}

// appendRecord adds one more command to an already recorded run.
func appendRecord(t *testing.T, dbPath, runID string, rec trace.Record) {
	t.Helper()

	st, err := trace.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.WriteCommand(context.Background(), runID, rec))
}

func TestReplayCommandCleanRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	runID := seedRun(t, dbPath, "clean_session")

	out, err := execRoot(t, "replay", "--db", dbPath, "--run", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Trace is protocol-clean")
}

func TestReplayCommandReportsViolations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	runID := seedRun(t, dbPath, "violating")

	// seedRun's trace is clean; append a redundant stop to break it.
	appendRecord(t, dbPath, runID, trace.Record{
		Tick: 3, Seq: 4, Kind: device.StopCombined,
	})

	out, err := execRoot(t, "replay", "--db", dbPath, "--run", runID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "protocol violation(s)")
	assert.Contains(t, out, "redundant stop")
}

func TestReplayCommandRunNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "traces.db")
	seedRun(t, dbPath, "present")

	_, err := execRoot(t, "replay", "--db", dbPath, "--run", "absent")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
