package relay

// handleTraceStatus reports the delegated tasks currently producing
// live output.
func (g *Gateway) handleTraceStatus(c *Client, msg *InboundMessage) {
	tasks, err := g.vault.ListLiveTasks()
	if err != nil {
		c.Send(errorFrame(ErrCodeTraceStatusFailed, err.Error(), msg.RequestID))
		return
	}

	type liveTask struct {
		TaskID    string `json:"taskId"`
		Size      int64  `json:"size"`
		UpdatedAt int64  `json:"updatedAt"`
	}
	out := make([]liveTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, liveTask{
			TaskID:    t.TaskID,
			Size:      t.Size,
			UpdatedAt: t.UpdatedAt.UnixMilli(),
		})
	}

	c.Send(OutboundMessage{
		Type:      TypeTraceStatusResp,
		RequestID: msg.RequestID,
		Data:      map[string]any{"liveTasks": out},
	})
}

// handleTraceCancelTask drops a cancellation signal for a running task
func (g *Gateway) handleTraceCancelTask(c *Client, msg *InboundMessage) {
	if msg.TaskID == "" {
		c.Send(errorFrame(ErrCodeTaskCancelFailed, "taskId is required", msg.RequestID))
		return
	}

	if err := g.vault.WriteCancelSignal(msg.TaskID, "cancelled via relay"); err != nil {
		c.Send(errorFrame(ErrCodeTaskCancelFailed, err.Error(), msg.RequestID))
		return
	}

	c.Send(OutboundMessage{
		Type:      TypeTraceCancelResp,
		RequestID: msg.RequestID,
		Data:      map[string]any{"taskId": msg.TaskID, "signalled": true},
	})
}
