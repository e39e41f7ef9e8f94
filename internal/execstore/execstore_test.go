package execstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "e1", ProgramID: "p1", Status: StatusQueued}))

	rec, err := s.Get("e1")
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.ProgramID)
	assert.Equal(t, StatusQueued, rec.Status)
}

func TestCreateDuplicateRejected(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "e1", Status: StatusQueued}))
	err := s.Create(Execution{ExecutionID: "e1", Status: StatusQueued})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRefusesTerminal(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "e1", Status: StatusCompleted}))
	err := s.Update("e1", func(rec *Execution) { rec.Status = StatusRunning })
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestUpdateMutatesInPlace(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "e1", Status: StatusQueued}))
	require.NoError(t, s.Update("e1", func(rec *Execution) { rec.Status = StatusRunning }))

	rec, err := s.Get("e1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
}

func TestListRunningExcludesTerminal(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "running", Status: StatusRunning}))
	require.NoError(t, s.Create(Execution{ExecutionID: "done", Status: StatusCompleted}))

	running := s.ListRunning()
	require.Len(t, running, 1)
	assert.Equal(t, "running", running[0].ExecutionID)
}

func TestPruneOnlyRemovesTerminal(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "running", Status: StatusRunning}))
	require.NoError(t, s.Create(Execution{ExecutionID: "done", Status: StatusCompleted}))

	removed := s.Prune(nil)
	assert.Equal(t, 1, removed)

	_, err := s.Get("running")
	assert.NoError(t, err)
	_, err = s.Get("done")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkOrphanedUnknown(t *testing.T) {
	s := New()
	require.NoError(t, s.Create(Execution{ExecutionID: "running", Status: StatusRunning}))
	require.NoError(t, s.Create(Execution{ExecutionID: "done", Status: StatusCompleted}))

	marked := s.MarkOrphanedUnknown()
	assert.Equal(t, 1, marked)

	rec, err := s.Get("running")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, rec.Status)
	assert.NotNil(t, rec.EndTime)
}
