package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

func TestCreateDelegatedTasksValidation(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateDelegatedTasks("job-1", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = v.CreateDelegatedTasks("job-1", []TaskSpec{{TargetHarnessType: "claude"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = v.CreateDelegatedTasks("job-1", []TaskSpec{{Instruction: "do it"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestDependentTaskStagesUntilDependencyCompletes(t *testing.T) {
	v := newTestVault(t)

	base, err := v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "collect data", TargetHarnessType: "claude", Priority: 50},
	})
	require.NoError(t, err)
	baseID := base[0].ID

	dependent, err := v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "write report", TargetHarnessType: "claude", Priority: 50, DependsOn: []string{baseID}},
	})
	require.NoError(t, err)
	depID := dependent[0].ID

	// only the base task is pullable; the dependent one is staged
	pulled, err := v.GetPendingTasks("claude")
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	assert.Equal(t, baseID, pulled[0].ID)
	assert.Equal(t, TaskStatusClaimed, pulled[0].Status)

	none, err := v.GetPendingTasks("claude")
	require.NoError(t, err)
	assert.Empty(t, none)

	claimed, err := v.ClaimTask(baseID, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusRunning, claimed.Status)
	assert.Equal(t, "worker-1", claimed.ClaimedBy)

	_, err = v.UpdateTaskStatus(baseID, TaskStatusCompleted, "data collected", "")
	require.NoError(t, err)

	// completion promoted the staged dependent task into pending
	promoted, err := v.GetPendingTasks("claude")
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.Equal(t, depID, promoted[0].ID)
}

func TestFailedDependencyDoesNotPromote(t *testing.T) {
	v := newTestVault(t)

	base, err := v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "base", TargetHarnessType: "codex", Priority: 50},
	})
	require.NoError(t, err)

	_, err = v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "gated", TargetHarnessType: "codex", Priority: 50, DependsOn: []string{base[0].ID}},
	})
	require.NoError(t, err)

	pulled, err := v.GetPendingTasks("codex")
	require.NoError(t, err)
	require.Len(t, pulled, 1)

	_, err = v.UpdateTaskStatus(base[0].ID, TaskStatusFailed, "", "harness crashed")
	require.NoError(t, err)

	still, err := v.GetPendingTasks("codex")
	require.NoError(t, err)
	assert.Empty(t, still)
}

func TestGetPendingTasksFiltersHarnessType(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "for claude", TargetHarnessType: "claude", Priority: 50},
	})
	require.NoError(t, err)

	none, err := v.GetPendingTasks("codex")
	require.NoError(t, err)
	assert.Empty(t, none)

	pulled, err := v.GetPendingTasks("claude")
	require.NoError(t, err)
	assert.Len(t, pulled, 1)
}

func TestCompletedTasksRecoveredAcrossRestart(t *testing.T) {
	root := t.TempDir()
	v, err := New(root)
	require.NoError(t, err)

	base, err := v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "base", TargetHarnessType: "claude", Priority: 50},
	})
	require.NoError(t, err)

	pulled, err := v.GetPendingTasks("claude")
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	_, err = v.UpdateTaskStatus(base[0].ID, TaskStatusCompleted, "ok", "")
	require.NoError(t, err)

	// a fresh vault over the same root rebuilds the completed set from
	// the done directory, so new dependents enqueue directly
	reopened, err := New(root)
	require.NoError(t, err)

	dep, err := reopened.CreateDelegatedTasks("job-2", []TaskSpec{
		{Instruction: "dependent", TargetHarnessType: "claude", Priority: 50, DependsOn: []string{base[0].ID}},
	})
	require.NoError(t, err)

	ready, err := reopened.GetPendingTasks("claude")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, dep[0].ID, ready[0].ID)
}

func TestTaskVersionGrowsMonotonically(t *testing.T) {
	v := newTestVault(t)

	created, err := v.CreateDelegatedTasks("job-1", []TaskSpec{
		{Instruction: "track versions", TargetHarnessType: "claude", Priority: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created[0].Version)

	pulled, err := v.GetPendingTasks("claude")
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	assert.Equal(t, 2, pulled[0].Version)

	claimed, err := v.ClaimTask(created[0].ID, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 3, claimed.Version)

	finished, err := v.UpdateTaskStatus(created[0].ID, TaskStatusCompleted, "done", "")
	require.NoError(t, err)
	assert.Equal(t, 4, finished.Version)

	got, err := v.GetTask(created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Version)
	assert.Equal(t, TaskStatusCompleted, got.Status)
}
