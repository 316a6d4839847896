package relay

import (
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// StatusSnapshot is the system:status / GET /api/status payload
type StatusSnapshot struct {
	PendingJobs      int     `json:"pendingJobs"`
	RunningJobs      int     `json:"runningJobs"`
	PendingTasks     int     `json:"pendingTasks"`
	RunningTasks     int     `json:"runningTasks"`
	AgentOnline      bool    `json:"agentOnline"`
	ConnectedClients int     `json:"connectedClients"`
	VaultPath        string  `json:"vaultPath"`
	UptimeSec        int64   `json:"uptimeSec"`
	MemoryUsedPct    float64 `json:"memoryUsedPct,omitempty"`
	Load1            float64 `json:"load1,omitempty"`
}

// snapshot assembles the current status. Host metrics are best effort.
func (g *Gateway) snapshot() StatusSnapshot {
	jobsPending, jobsRunning, tasksPending, tasksRunning := g.vault.QueueDepths()

	s := StatusSnapshot{
		PendingJobs:      jobsPending,
		RunningJobs:      jobsRunning,
		PendingTasks:     tasksPending,
		RunningTasks:     tasksRunning,
		AgentOnline:      g.bridge != nil && g.bridge.Connected(),
		ConnectedClients: g.registry.Size(),
		VaultPath:        g.vault.Root(),
		UptimeSec:        int64(time.Since(g.startedAt).Seconds()),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsedPct = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		s.Load1 = avg.Load1
	}

	return s
}

// handleSystemStatus answers a status query
func (g *Gateway) handleSystemStatus(c *Client, msg *InboundMessage) {
	c.Send(OutboundMessage{
		Type:      TypeStatusResponse,
		RequestID: msg.RequestID,
		Data:      g.snapshot(),
	})
}

// handleSystemSubscribe unions event patterns into the session
func (g *Gateway) handleSystemSubscribe(c *Client, msg *InboundMessage) {
	g.registry.Subscribe(c, msg.Events)
	c.Send(OutboundMessage{
		Type:      TypeStatusResponse,
		RequestID: msg.RequestID,
		Data:      map[string]any{"subscribed": msg.Events},
	})
}
