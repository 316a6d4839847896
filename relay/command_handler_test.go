package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

func TestModelCommand(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "model", "")
	assert.True(t, ok)
	assert.Equal(t, "Active model: anthropic/claude-sonnet-4", out)

	ok, out = g.runCommand("session-1", "model", "openai/gpt-4o")
	assert.True(t, ok)
	assert.Contains(t, out, "openai/gpt-4o")

	ok, out = g.runCommand("session-1", "model", "")
	assert.True(t, ok)
	assert.Equal(t, "Active model: openai/gpt-4o", out)

	// overrides are per session
	_, out = g.runCommand("session-2", "model", "")
	assert.Equal(t, "Active model: anthropic/claude-sonnet-4", out)
}

func TestResetClearsSessionSettings(t *testing.T) {
	g := newTestGateway(t, "")

	g.runCommand("session-1", "model", "openai/gpt-4o")
	ok, _ := g.runCommand("session-1", "reset", "")
	assert.True(t, ok)

	_, out := g.runCommand("session-1", "model", "")
	assert.Equal(t, "Active model: anthropic/claude-sonnet-4", out)

	_, out = g.runCommand("session-1", "session", "")
	assert.Equal(t, "No session settings.", out)
}

func TestThreadCommand(t *testing.T) {
	g := newTestGateway(t, "")

	// no args and no current thread creates one
	ok, out := g.runCommand("session-1", "thread", "")
	require.True(t, ok)
	assert.Contains(t, out, "Started new thread thread-")

	// second call shows the current thread rather than creating another
	ok, out = g.runCommand("session-1", "thread", "")
	require.True(t, ok)
	assert.Contains(t, out, "Current thread: thread-")

	ok, out = g.runCommand("session-1", "thread", "thread-manual1")
	require.True(t, ok)
	assert.Equal(t, "Switched to thread thread-manual1", out)
}

func TestUnknownCommand(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "frobnicate", "")
	assert.False(t, ok)
	assert.Contains(t, out, "Unknown command")
	assert.Contains(t, out, "frobnicate")
}

func TestHelpCommand(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "help", "")
	assert.True(t, ok)
	assert.Contains(t, out, "delegate")
	assert.Contains(t, out, "task-result")

	ok, out2 := g.runCommand("session-1", "commands", "")
	assert.True(t, ok)
	assert.Equal(t, out, out2)
}

func TestStatusCommand(t *testing.T) {
	g := newTestGateway(t, "")

	_, err := g.vault.CreateJob(vault.JobSpec{Instruction: "queued work", Priority: 50})
	require.NoError(t, err)

	ok, out := g.runCommand("session-1", "status", "")
	assert.True(t, ok)
	assert.Contains(t, out, "Jobs: 1 pending")
	assert.Contains(t, out, "Worker online: false")
}

func TestMemoryCommand(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "memory", "")
	assert.True(t, ok)
	assert.Equal(t, "Memory is empty.", out)

	require.NoError(t, g.vault.AppendFact("Speaks Luganda"))
	ok, out = g.runCommand("session-1", "memory", "")
	assert.True(t, ok)
	assert.Contains(t, out, "Speaks Luganda")
}

func TestDelegateCommandParsesHarness(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "delegate", "refactor the parser @claude-code")
	require.True(t, ok)
	assert.Contains(t, out, "harness: claude-code")

	tasks, err := g.vault.GetPendingTasks("claude-code")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "refactor the parser", tasks[0].Instruction)
}

func TestDelegateCommandDefaultsHarness(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "delegate", "email bob@example.com about the launch")
	require.True(t, ok)
	// the @ inside the instruction is not a harness marker
	assert.Contains(t, out, "harness: any")

	tasks, err := g.vault.GetPendingTasks("any")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "email bob@example.com about the launch", tasks[0].Instruction)

	ok, _ = g.runCommand("session-1", "delegate", "")
	assert.False(t, ok)
}

func TestTaskResultCommand(t *testing.T) {
	g := newTestGateway(t, "")

	ok, out := g.runCommand("session-1", "task-result", "task-missing")
	assert.False(t, ok)
	assert.Contains(t, out, "No task")

	tasks, err := g.vault.CreateDelegatedTasks("job-1", []vault.TaskSpec{
		{Instruction: "compute", TargetHarnessType: "claude-code"},
	})
	require.NoError(t, err)
	taskID := tasks[0].ID

	ok, out = g.runCommand("session-1", "task-result", taskID)
	assert.True(t, ok)
	assert.Equal(t, PendingSentinel, out)

	pulled, err := g.vault.GetPendingTasks("claude-code")
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	_, err = g.vault.UpdateTaskStatus(taskID, vault.TaskStatusCompleted, "the answer is 42", "")
	require.NoError(t, err)

	ok, out = g.runCommand("session-1", "task-result", taskID)
	assert.True(t, ok)
	assert.Equal(t, "the answer is 42", out)
}

func TestJobResultCommand(t *testing.T) {
	g := newTestGateway(t, "")

	job, err := g.vault.CreateJob(vault.JobSpec{Instruction: "long running", Priority: 50})
	require.NoError(t, err)

	ok, out := g.runCommand("session-1", "job-result", job.ID)
	assert.True(t, ok)
	assert.Equal(t, PendingSentinel, out)

	_, err = g.vault.GetPendingJob("worker-1")
	require.NoError(t, err)
	_, err = g.vault.UpdateJobStatus(job.ID, vault.JobStatusDone, "", "")
	require.NoError(t, err)

	ok, out = g.runCommand("session-1", "job-result", job.ID)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(out, "Job "+job.ID+" finished"))
}

func TestSearchCommand(t *testing.T) {
	g := newTestGateway(t, "")

	_, err := g.vault.CreateNote("recipes", "A note about sourdough bread.")
	require.NoError(t, err)

	ok, out := g.runCommand("session-1", "search", "sourdough")
	assert.True(t, ok)
	assert.Contains(t, out, "recipes")

	ok, _ = g.runCommand("session-1", "search", "")
	assert.False(t, ok)
}
