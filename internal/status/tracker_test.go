package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker([]string{"a", "b"})

	st, ok := tr.TaskState("a")
	require.True(t, ok)
	assert.Equal(t, TaskPending, st)
	assert.Equal(t, RunRunning, tr.RunState())
	assert.Equal(t, 0, tr.Attempts("a"))
}

func TestTracker_HappyPath(t *testing.T) {
	tr := NewTracker([]string{"a"})

	require.NoError(t, tr.Transition("a", TaskRunning))
	require.NoError(t, tr.Transition("a", TaskCompleted))

	snap, ok := tr.Snapshot("a")
	require.True(t, ok)
	assert.Equal(t, TaskCompleted, snap.State)
	assert.Equal(t, 1, snap.Attempts)
	assert.False(t, snap.StartedAt.IsZero())
	assert.False(t, snap.EndedAt.IsZero())
}

func TestTracker_RetryLoopCountsAttempts(t *testing.T) {
	tr := NewTracker([]string{"a"})

	require.NoError(t, tr.Transition("a", TaskRunning))
	require.NoError(t, tr.Transition("a", TaskRetrying))
	require.NoError(t, tr.Transition("a", TaskRunning))
	require.NoError(t, tr.Transition("a", TaskRetrying))
	require.NoError(t, tr.Transition("a", TaskRunning))
	require.NoError(t, tr.Transition("a", TaskFailed))

	assert.Equal(t, 3, tr.Attempts("a"))
}

func TestTracker_DisallowedTransitions(t *testing.T) {
	cases := []struct {
		name string
		prep []TaskState
		to   TaskState
	}{
		{"pending to completed", nil, TaskCompleted},
		{"pending to failed", nil, TaskFailed},
		{"pending to retrying", nil, TaskRetrying},
		{"completed is terminal", []TaskState{TaskRunning, TaskCompleted}, TaskRunning},
		{"failed is terminal", []TaskState{TaskRunning, TaskFailed}, TaskRunning},
		{"cancelled is terminal", []TaskState{TaskCancelled}, TaskRunning},
		{"retrying to completed", []TaskState{TaskRunning, TaskRetrying}, TaskCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker([]string{"a"})
			for _, st := range tc.prep {
				require.NoError(t, tr.Transition("a", st))
			}
			assert.Error(t, tr.Transition("a", tc.to))
		})
	}
}

func TestTracker_UnknownTask(t *testing.T) {
	tr := NewTracker([]string{"a"})
	assert.Error(t, tr.Transition("ghost", TaskRunning))

	_, ok := tr.TaskState("ghost")
	assert.False(t, ok)
	_, ok = tr.Snapshot("ghost")
	assert.False(t, ok)
}

func TestTracker_RecordErrorAndReason(t *testing.T) {
	tr := NewTracker([]string{"a"})
	boom := errors.New("boom")

	tr.RecordError("a", boom)
	tr.RecordReason("a", "cancelled by request")

	snap, _ := tr.Snapshot("a")
	assert.Equal(t, boom, snap.Error)
	assert.Equal(t, "cancelled by request", snap.Reason)
}

func TestTracker_TerminalRunStateSticks(t *testing.T) {
	tr := NewTracker([]string{"a"})

	tr.SetRunState(RunCancelled)
	tr.SetRunState(RunCompleted)

	assert.Equal(t, RunCancelled, tr.RunState())
}

func TestTracker_Failed(t *testing.T) {
	tr := NewTracker([]string{"a", "b"})
	require.NoError(t, tr.Transition("a", TaskRunning))
	require.NoError(t, tr.Transition("a", TaskFailed))
	require.NoError(t, tr.Transition("b", TaskRunning))
	require.NoError(t, tr.Transition("b", TaskCompleted))

	failed := tr.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].TaskID)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "pending", TaskPending.String())
	assert.Equal(t, "cancelled", TaskCancelled.String())
	assert.Equal(t, "failed", RunFailed.String())

	assert.True(t, TaskCompleted.Terminal())
	assert.False(t, TaskRetrying.Terminal())
	assert.True(t, TaskCompleted.Successful())
	assert.False(t, TaskCancelled.Successful())
	assert.True(t, RunFailed.Terminal())
	assert.False(t, RunRunning.Terminal())
}
