package relay

import (
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/bus"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

// handleJobSubmit enqueues a job and registers the submitter as a
// watcher for its status changes.
func (g *Gateway) handleJobSubmit(c *Client, msg *InboundMessage) {
	job, err := g.vault.CreateJob(vault.JobSpec{
		Instruction:     msg.Instruction,
		Type:            msg.JobType,
		Priority:        msg.Priority,
		SecurityProfile: msg.SecurityProfile,
		ModelOverride:   msg.ModelOverride,
		ThinkingLevel:   msg.ThinkingLevel,
		ThreadID:        msg.ThreadID,
	})
	if err != nil {
		c.Send(errorFrame(ErrCodeJobSubmitFailed, err.Error(), msg.RequestID))
		return
	}

	g.addWatcher(job.ID, c.SessionToken())

	c.Send(OutboundMessage{
		Type:      TypeJobSubmitted,
		JobID:     job.ID,
		Status:    vault.JobStatusPending,
		RequestID: msg.RequestID,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// handleJobCancel best-effort fails a job and echoes completion
func (g *Gateway) handleJobCancel(c *Client, msg *InboundMessage) {
	if msg.JobID == "" {
		c.Send(errorFrame(ErrCodeJobCancelFailed, "jobId is required", msg.RequestID))
		return
	}

	job, err := g.vault.CancelJob(msg.JobID, "cancelled by client")
	if err != nil {
		c.Send(errorFrame(ErrCodeJobCancelFailed, err.Error(), msg.RequestID))
		return
	}

	c.Send(OutboundMessage{
		Type:      TypeJobComplete,
		JobID:     job.ID,
		Status:    job.Status,
		RequestID: msg.RequestID,
	})
	g.clearWatchers(job.ID)
}

// addWatcher registers a session in a job's watch set
func (g *Gateway) addWatcher(jobID, sessionToken string) {
	if sessionToken == "" {
		return
	}
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	set, ok := g.watchers[jobID]
	if !ok {
		set = make(map[string]struct{})
		g.watchers[jobID] = set
	}
	set[sessionToken] = struct{}{}
}

// watchersOf snapshots a job's watch set
func (g *Gateway) watchersOf(jobID string) []string {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	set := g.watchers[jobID]
	out := make([]string, 0, len(set))
	for token := range set {
		out = append(out, token)
	}
	return out
}

// clearWatchers drops a job's entire watch set
func (g *Gateway) clearWatchers(jobID string) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	delete(g.watchers, jobID)
}

// dropWatcher removes a departed session from every watch set
func (g *Gateway) dropWatcher(sessionToken string) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	for jobID, set := range g.watchers {
		delete(set, sessionToken)
		if len(set) == 0 {
			delete(g.watchers, jobID)
		}
	}
}

// onJobEvent translates a change bus job event into frames for the
// sessions watching that job.
func (g *Gateway) onJobEvent(ev bus.Event) {
	jobID := ev.Data["jobId"]
	if jobID == "" {
		return
	}

	watchers := g.watchersOf(jobID)
	if len(watchers) == 0 {
		return
	}

	job, err := g.vault.GetJob(jobID)
	if err != nil {
		g.log.Warnw("Watched job vanished", "job_id", jobID, "error", err)
		return
	}

	kind := TypeJobStatus
	terminal := vault.IsTerminalJobStatus(job.Status)
	if terminal {
		kind = TypeJobComplete
	}

	frame := OutboundMessage{
		Type:   kind,
		JobID:  jobID,
		Status: job.Status,
		Result: job.Result,
	}
	for _, token := range watchers {
		g.registry.SendTo(token, frame)
	}
	if terminal {
		g.clearWatchers(jobID)
	}
}
