package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(t.TempDir())
	require.NoError(t, err)
	return v
}

func TestCreateJobRequiresInstruction(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateJob(JobSpec{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestJobLifecycle(t *testing.T) {
	v := newTestVault(t)

	created, err := v.CreateJob(JobSpec{Instruction: "Summarize inbox", Priority: 50})
	require.NoError(t, err)
	assert.Contains(t, created.ID, "job-")
	assert.Equal(t, JobStatusPending, created.Status)
	assert.Equal(t, JobTypeBackground, created.Type)
	assert.Equal(t, 1, created.Version)

	pulled, err := v.GetPendingJob("worker-1")
	require.NoError(t, err)
	require.NotNil(t, pulled)
	assert.Equal(t, created.ID, pulled.ID)

	claimed, err := v.ClaimJob(pulled.ID, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, claimed.Status)
	assert.Equal(t, "worker-1", claimed.WorkerID)
	assert.Equal(t, 2, claimed.Version)

	done, err := v.UpdateJobStatus(pulled.ID, JobStatusDone, "Inbox summarized.", "")
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, done.Status)
	assert.Equal(t, "Inbox summarized.", done.Result)
	assert.Greater(t, done.Version, claimed.Version)

	// terminal record remains readable after the ack
	got, err := v.GetJob(pulled.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, got.Status)
	assert.Equal(t, "Summarize inbox", got.Instruction)
}

func TestGetPendingJobHonorsPriority(t *testing.T) {
	v := newTestVault(t)

	low, err := v.CreateJob(JobSpec{Instruction: "low", Priority: 10})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	urgent, err := v.CreateJob(JobSpec{Instruction: "urgent", Priority: 95})
	require.NoError(t, err)

	first, err := v.GetPendingJob("worker-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, urgent.ID, first.ID)

	second, err := v.GetPendingJob("worker-1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, low.ID, second.ID)

	empty, err := v.GetPendingJob("worker-1")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClaimJobWithoutDequeueConflicts(t *testing.T) {
	v := newTestVault(t)

	_, err := v.ClaimJob("job-nothere", "worker-1")
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestCancelPendingJob(t *testing.T) {
	v := newTestVault(t)

	job, err := v.CreateJob(JobSpec{Instruction: "never runs", Priority: 50})
	require.NoError(t, err)

	cancelled, err := v.CancelJob(job.ID, "cancelled by client")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, cancelled.Status)
	assert.Equal(t, "cancelled by client", cancelled.Error)

	// the queue no longer offers it
	next, err := v.GetPendingJob("worker-1")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestCancelUnknownJob(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CancelJob("job-missing", "n/a")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestPendingJobsListsQueueOrder(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateJob(JobSpec{Instruction: "first-normal", Priority: 50})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = v.CreateJob(JobSpec{Instruction: "critical", Priority: 95})
	require.NoError(t, err)

	jobs, err := v.PendingJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "critical", jobs[0].Instruction)
	assert.Equal(t, "first-normal", jobs[1].Instruction)

	jp, jproc, _, _ := v.QueueDepths()
	assert.Equal(t, 2, jp)
	assert.Equal(t, 0, jproc)
}
