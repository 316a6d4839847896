package relay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

// PendingSentinel is returned by result commands while the work is still
// in flight, so frontends can poll without parsing prose.
const PendingSentinel = "__pending__"

const memoryCommandBytes = 1536

const helpText = `Available commands:
  reset | new          clear session settings
  session              show session settings
  model [name]         show or set the chat model
  thread [id]          show, create, or switch thread
  status | hq          gateway and queue status
  memory               show the memory record
  threads              recent threads
  search <query>       search the vault
  delegate <task>      delegate a task to a harness
  task-result <id>     fetch a delegated task result
  job-result <id>      fetch a job result
  help | commands      this text`

// handleCommand executes one cmd:execute frame against the per-session
// settings map and the vault.
func (g *Gateway) handleCommand(c *Client, msg *InboundMessage) {
	success, output := g.runCommand(c.SessionToken(), msg.Command, msg.Args)
	c.Send(OutboundMessage{
		Type:      TypeCmdResult,
		RequestID: msg.RequestID,
		Success:   boolPtr(success),
		Output:    output,
	})
}

// runCommand is the shared implementation behind the WS and REST paths
func (g *Gateway) runCommand(sessionToken, command, args string) (bool, string) {
	command = strings.ToLower(strings.TrimSpace(command))
	args = strings.TrimSpace(args)

	switch command {
	case "reset", "new":
		g.clearSettings(sessionToken)
		return true, "Session reset."

	case "session":
		return true, g.dumpSettings(sessionToken)

	case "model":
		if args == "" {
			return true, "Active model: " + g.resolveModel(sessionToken, "")
		}
		g.setSetting(sessionToken, "model", args)
		return true, "Model set to " + args

	case "thread":
		return g.threadCommand(sessionToken, args)

	case "status", "hq", "hq-status":
		return true, g.statusText()

	case "memory":
		memory, err := g.vault.ReadMemory(memoryCommandBytes)
		if err != nil {
			return false, "Failed to read memory: " + err.Error()
		}
		if strings.TrimSpace(memory) == "" {
			return true, "Memory is empty."
		}
		return true, memory

	case "threads":
		return g.threadsCommand()

	case "search":
		return g.searchCommand(args)

	case "delegate":
		return g.delegateCommand(args)

	case "task-result":
		return g.taskResultCommand(args)

	case "job-result":
		return g.jobResultCommand(args)

	case "help", "commands":
		return true, helpText

	default:
		return false, fmt.Sprintf("Unknown command %q. Try 'help'.", command)
	}
}

func (g *Gateway) threadCommand(sessionToken, args string) (bool, string) {
	if args == "" {
		if current := g.sessionSetting(sessionToken, "threadId"); current != "" {
			return true, "Current thread: " + current
		}
		threadID, err := g.vault.CreateThread()
		if err != nil {
			return false, "Failed to create thread: " + err.Error()
		}
		g.setSetting(sessionToken, "threadId", threadID)
		return true, "Started new thread " + threadID
	}
	g.setSetting(sessionToken, "threadId", args)
	return true, "Switched to thread " + args
}

func (g *Gateway) statusText() string {
	jobsPending, jobsRunning, tasksPending, tasksRunning := g.vault.QueueDepths()
	workerOnline := g.bridge != nil && g.bridge.Connected()
	return fmt.Sprintf(
		"Jobs: %d pending, %d running\nTasks: %d pending, %d running\nWorker online: %t\nClients: %d",
		jobsPending, jobsRunning, tasksPending, tasksRunning, workerOnline, g.registry.Size())
}

func (g *Gateway) threadsCommand() (bool, string) {
	threads, err := g.vault.ListThreads(10)
	if err != nil {
		return false, "Failed to list threads: " + err.Error()
	}
	if len(threads) == 0 {
		return true, "No threads yet."
	}
	var b strings.Builder
	for _, t := range threads {
		fmt.Fprintf(&b, "- %s (%s)", t.ID, t.UpdatedAt.Format("Jan 2 15:04"))
		if t.Preview != "" {
			fmt.Fprintf(&b, ": %s", t.Preview)
		}
		b.WriteString("\n")
	}
	return true, strings.TrimRight(b.String(), "\n")
}

func (g *Gateway) searchCommand(query string) (bool, string) {
	if query == "" {
		return false, "Usage: search <query>"
	}
	results, err := g.vault.SearchNotes(query, 5)
	if err != nil {
		return false, "Search failed: " + err.Error()
	}
	if len(results) == 0 {
		return true, "No matches for " + query
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- **%s**: %s\n", r.Title, r.Snippet)
	}
	return true, strings.TrimRight(b.String(), "\n")
}

// delegateCommand enqueues a single delegated task. Args form:
// "<instruction>" or "<instruction> @<harness>".
func (g *Gateway) delegateCommand(args string) (bool, string) {
	if args == "" {
		return false, "Usage: delegate <task> [@claude-code|@opencode|@gemini-cli]"
	}

	harness := "any"
	instruction := args
	if idx := strings.LastIndex(args, "@"); idx > 0 {
		candidate := strings.TrimSpace(args[idx+1:])
		switch candidate {
		case "claude-code", "opencode", "gemini-cli", "any":
			harness = candidate
			instruction = strings.TrimSpace(args[:idx])
		}
	}

	job, err := g.vault.CreateJob(vault.JobSpec{
		Instruction: instruction,
		Type:        vault.JobTypeBackground,
	})
	if err != nil {
		return false, "Delegation failed: " + err.Error()
	}

	tasks, err := g.vault.CreateDelegatedTasks(job.ID, []vault.TaskSpec{{
		Instruction:       instruction,
		TargetHarnessType: harness,
	}})
	if err != nil {
		return false, "Delegation failed: " + err.Error()
	}

	return true, fmt.Sprintf("Delegated as %s (harness: %s)", tasks[0].ID, harness)
}

func (g *Gateway) taskResultCommand(taskID string) (bool, string) {
	if taskID == "" {
		return false, "Usage: task-result <taskId>"
	}
	task, err := g.vault.GetTask(taskID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return false, "No task " + taskID
		}
		return false, "Lookup failed: " + err.Error()
	}
	if !vault.IsTerminalTaskStatus(task.Status) {
		return true, PendingSentinel
	}
	if task.Result != "" {
		return true, task.Result
	}
	return true, fmt.Sprintf("Task %s finished with status %s", taskID, task.Status)
}

func (g *Gateway) jobResultCommand(jobID string) (bool, string) {
	if jobID == "" {
		return false, "Usage: job-result <jobId>"
	}
	job, err := g.vault.GetJob(jobID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return false, "No job " + jobID
		}
		return false, "Lookup failed: " + err.Error()
	}
	if !vault.IsTerminalJobStatus(job.Status) {
		return true, PendingSentinel
	}
	if job.Result != "" {
		return true, job.Result
	}
	return true, fmt.Sprintf("Job %s finished with status %s", jobID, job.Status)
}

// --- per-session settings ---

func (g *Gateway) sessionSetting(sessionToken, key string) string {
	g.settingsMu.Lock()
	defer g.settingsMu.Unlock()
	if m, ok := g.settings[sessionToken]; ok {
		return m[key]
	}
	return ""
}

func (g *Gateway) setSetting(sessionToken, key, value string) {
	g.settingsMu.Lock()
	defer g.settingsMu.Unlock()
	m, ok := g.settings[sessionToken]
	if !ok {
		m = make(map[string]string)
		g.settings[sessionToken] = m
	}
	m[key] = value
}

func (g *Gateway) clearSettings(sessionToken string) {
	g.settingsMu.Lock()
	defer g.settingsMu.Unlock()
	delete(g.settings, sessionToken)
}

func (g *Gateway) dumpSettings(sessionToken string) string {
	g.settingsMu.Lock()
	m := g.settings[sessionToken]
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, m[k])
	}
	g.settingsMu.Unlock()

	if b.Len() == 0 {
		return "No session settings."
	}
	return strings.TrimRight(b.String(), "\n")
}
