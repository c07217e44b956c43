package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_FullCycle(t *testing.T) {
	m := NewManager()
	const id = 1

	assert.Equal(t, StateIdle, m.State(id))
	assert.False(t, m.Resident(id))

	require.NoError(t, m.BeginUpload(id))
	assert.Equal(t, StateUploading, m.State(id))

	require.NoError(t, m.UploadResult(id, true))
	assert.Equal(t, StateResidentStopped, m.State(id))
	assert.True(t, m.Resident(id))

	require.NoError(t, m.Started(id))
	assert.Equal(t, StateResidentPlaying, m.State(id))

	require.NoError(t, m.Stopped(id))
	assert.Equal(t, StateResidentStopped, m.State(id))

	require.NoError(t, m.Erased(id))
	assert.Equal(t, StateIdle, m.State(id))
	assert.Equal(t, 0, m.Tracked())
}

func TestManager_UploadRejectionReturnsToIdle(t *testing.T) {
	m := NewManager()
	const id = 1

	require.NoError(t, m.BeginUpload(id))
	require.NoError(t, m.UploadResult(id, false))

	assert.Equal(t, StateIdle, m.State(id))
	// A fresh start request may retry the upload.
	assert.NoError(t, m.BeginUpload(id))
}

func TestManager_StartRequiresSuccessfulUpload(t *testing.T) {
	m := NewManager()

	err := m.Started(1)
	require.Error(t, err)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateIdle, te.From)
	assert.Equal(t, "start", te.Op)

	// Not even mid-upload.
	require.NoError(t, m.BeginUpload(1))
	assert.Error(t, m.Started(1))
}

func TestManager_EraseForbiddenWhilePlaying(t *testing.T) {
	m := NewManager()
	const id = 1
	require.NoError(t, m.BeginUpload(id))
	require.NoError(t, m.UploadResult(id, true))
	require.NoError(t, m.Started(id))

	err := m.Erased(id)
	require.Error(t, err)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateResidentPlaying, te.From)

	// Stop first, then erase is legal.
	require.NoError(t, m.Stopped(id))
	assert.NoError(t, m.Erased(id))
}

func TestManager_EraseForbiddenWhileUploading(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginUpload(1))
	assert.Error(t, m.Erased(1))
}

func TestManager_EraseOnlyOnce(t *testing.T) {
	m := NewManager()
	const id = 1
	require.NoError(t, m.BeginUpload(id))
	require.NoError(t, m.UploadResult(id, true))
	require.NoError(t, m.Erased(id))

	assert.Error(t, m.Erased(id), "second erase must be rejected")
}

func TestManager_DoubleUploadForbidden(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginUpload(1))
	assert.Error(t, m.BeginUpload(1))

	require.NoError(t, m.UploadResult(1, true))
	assert.Error(t, m.BeginUpload(1), "resident effect cannot upload again without erase")
}

func TestManager_StopRequiresPlaying(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.Stopped(1))

	require.NoError(t, m.BeginUpload(1))
	require.NoError(t, m.UploadResult(1, true))
	assert.Error(t, m.Stopped(1), "resident but stopped effect cannot stop again")
}

func TestManager_UploadResultRequiresPendingUpload(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.UploadResult(1, true))
}

func TestManager_IndependentEffects(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginUpload(1))
	require.NoError(t, m.BeginUpload(2))
	require.NoError(t, m.UploadResult(1, true))
	require.NoError(t, m.UploadResult(2, false))

	assert.Equal(t, StateResidentStopped, m.State(1))
	assert.Equal(t, StateIdle, m.State(2))
	assert.Equal(t, 1, m.Tracked())
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{ID: 7, From: StateResidentPlaying, Op: "erase"}
	assert.Equal(t, "effect 7: cannot erase from resident_playing", err.Error())
}
