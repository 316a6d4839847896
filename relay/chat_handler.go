package relay

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

const (
	// armingTimeout is how long the upstream path gets to produce a
	// terminal frame before the synchronous fallback takes over.
	armingTimeout = 30 * time.Second

	// chatDeadline bounds a chat request end to end
	chatDeadline = 10 * time.Minute
)

// handleChatSend routes a chat message: upstream harness first, with a
// synchronous streaming fallback armed behind a timer.
func (g *Gateway) handleChatSend(c *Client, msg *InboundMessage) {
	if msg.Content == "" {
		c.Send(errorFrame(ErrCodeChatError, "content is required", msg.RequestID))
		return
	}
	if msg.RequestID == "" {
		msg.RequestID = "chat-" + uuid.NewString()[:8]
	}

	token := c.SessionToken()
	model := g.resolveModel(token, msg.ModelOverride)

	if g.bridge != nil && g.bridge.Connected() {
		_, err := g.bridge.SendChat(msg.Content, token, msg.RequestID, msg.ThreadID, model)
		if err == nil {
			g.armFallback(c, msg, model)
			return
		}
		g.log.Warnw("Upstream chat route failed, falling back", "error", err)
	}

	go g.chatFallback(c, msg, model)
}

// handleChatAbort propagates an abort upstream and echoes it. Safe when
// no stream is active.
func (g *Gateway) handleChatAbort(c *Client, msg *InboundMessage) {
	if g.bridge != nil {
		g.bridge.AbortChat(c.SessionToken())
	}
	g.disarm(msg.RequestID)
	c.Send(OutboundMessage{Type: TypeChatAbort, RequestID: msg.RequestID})
}

// armFallback starts the arming timer for an upstream-routed request
func (g *Gateway) armFallback(c *Client, msg *InboundMessage, model string) {
	g.chatMu.Lock()
	defer g.chatMu.Unlock()

	if old, ok := g.armingTimers[msg.RequestID]; ok {
		old.Stop()
	}
	g.armingTimers[msg.RequestID] = time.AfterFunc(armingTimeout, func() {
		g.chatMu.Lock()
		delete(g.armingTimers, msg.RequestID)
		g.chatMu.Unlock()

		g.log.Warnw("Upstream chat timed out, falling back", "request_id", msg.RequestID)
		g.chatFallback(c, msg, model)
	})
}

// disarm cancels the arming timer for a request, reporting whether a
// timer was still armed.
func (g *Gateway) disarm(requestID string) bool {
	g.chatMu.Lock()
	defer g.chatMu.Unlock()
	t, ok := g.armingTimers[requestID]
	if ok {
		t.Stop()
		delete(g.armingTimers, requestID)
	}
	return ok
}

// nextDeltaIndex returns the monotonic index for a request's next delta,
// starting at 0.
func (g *Gateway) nextDeltaIndex(requestID string) int {
	g.chatMu.Lock()
	counter, ok := g.deltaIndex[requestID]
	if !ok {
		counter = &atomic.Int64{}
		g.deltaIndex[requestID] = counter
	}
	g.chatMu.Unlock()
	return int(counter.Add(1) - 1)
}

func (g *Gateway) clearDeltaIndex(requestID string) {
	g.chatMu.Lock()
	delete(g.deltaIndex, requestID)
	g.chatMu.Unlock()
}

// chatFallback is the synchronous tier: context-enriched prompt, a
// streaming completion call, memory tag processing, thread append.
func (g *Gateway) chatFallback(c *Client, msg *InboundMessage, model string) {
	if !g.llm.Configured() {
		c.Send(errorFrame(ErrCodeNoAPIKey, "no chat API key configured", msg.RequestID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatDeadline)
	defer cancel()

	messages := g.buildChatMessages(c, msg)

	opts := openrouter.ChatOptions{
		Model:       model,
		Temperature: g.cfg.Chat.Temperature,
		MaxTokens:   g.cfg.Chat.MaxTokens,
	}

	resp, err := g.llm.ChatStream(ctx, messages, opts, func(delta string) {
		c.Send(OutboundMessage{
			Type:      TypeChatDelta,
			RequestID: msg.RequestID,
			Delta:     delta,
			Index:     intPtr(g.nextDeltaIndex(msg.RequestID)),
		})
	})
	g.clearDeltaIndex(msg.RequestID)
	if err != nil {
		g.log.Errorw("Chat fallback failed", "request_id", msg.RequestID, "error", err)
		c.Send(errorFrame(ErrCodeChatTimeout, "chat failed on both paths", msg.RequestID))
		return
	}

	cleaned := g.processMemoryTags(resp.Content)

	if msg.ThreadID != "" {
		if err := g.vault.AppendToThread(msg.ThreadID, vault.RoleUser, msg.Content); err != nil {
			g.log.Warnw("Thread append failed", "thread_id", msg.ThreadID, "error", err)
		} else if err := g.vault.AppendToThread(msg.ThreadID, vault.RoleAssistant, cleaned); err != nil {
			g.log.Warnw("Thread append failed", "thread_id", msg.ThreadID, "error", err)
		}
	}

	if resp.Usage.TotalTokens > 0 {
		if err := g.vault.AppendUsage(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Cost); err != nil {
			g.log.Warnw("Usage append failed", "error", err)
		}
	}

	c.Send(OutboundMessage{
		Type:      TypeChatFinal,
		RequestID: msg.RequestID,
		Content:   cleaned,
	})
}

// resolveModel picks the model: explicit override, then the session's
// command setting, then the configured default.
func (g *Gateway) resolveModel(sessionToken, override string) string {
	if override != "" {
		return override
	}
	if m := g.sessionSetting(sessionToken, "model"); m != "" {
		return m
	}
	return g.cfg.Chat.DefaultModel
}

// --- bridge.ChatFrames: upstream frames routed back to sessions ---

// ChatDelta forwards one upstream text fragment
func (g *Gateway) ChatDelta(sessionToken, requestID, delta string) {
	g.registry.SendTo(sessionToken, OutboundMessage{
		Type:      TypeChatDelta,
		RequestID: requestID,
		Delta:     delta,
		Index:     intPtr(g.nextDeltaIndex(requestID)),
	})
}

// ChatTool forwards an upstream tool-use frame
func (g *Gateway) ChatTool(sessionToken, requestID string, tool json.RawMessage) {
	g.registry.SendTo(sessionToken, OutboundMessage{
		Type:      TypeChatTool,
		RequestID: requestID,
		Tool:      tool,
	})
}

// ChatFinal ends an upstream stream; the armed fallback stands down
func (g *Gateway) ChatFinal(sessionToken, requestID, content string) {
	g.disarm(requestID)
	g.clearDeltaIndex(requestID)
	g.registry.SendTo(sessionToken, OutboundMessage{
		Type:      TypeChatFinal,
		RequestID: requestID,
		Content:   content,
	})
}

// ChatError is an upstream protocol failure; it is terminal for the
// request, so the armed fallback stands down and the error surfaces.
func (g *Gateway) ChatError(sessionToken, requestID, message string) {
	g.disarm(requestID)
	g.clearDeltaIndex(requestID)
	g.registry.SendTo(sessionToken, errorFrame(ErrCodeChatError, message, requestID))
}
