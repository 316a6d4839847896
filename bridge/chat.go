package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// chatRequestTTL bounds how long a correlation entry may wait for a
// terminal frame before being dropped.
const chatRequestTTL = 10 * time.Minute

// ChatFrames receives streaming chat frames routed back to the session
// that originated them. Terminal frames (Final, Error) end the stream.
type ChatFrames interface {
	ChatDelta(sessionToken, requestID, delta string)
	ChatTool(sessionToken, requestID string, tool json.RawMessage)
	ChatFinal(sessionToken, requestID, content string)
	ChatError(sessionToken, requestID, message string)
}

type pendingChat struct {
	sessionToken string
	requestID    string
	threadID     string
	deadline     time.Time
}

type chatSendParams struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ThreadID string `json:"threadId,omitempty"`
	Model    string `json:"model,omitempty"`
}

type chatEventPayload struct {
	ID      string          `json:"id"`
	Delta   string          `json:"delta,omitempty"`
	Content string          `json:"content,omitempty"`
	Tool    json.RawMessage `json:"tool,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SetChatFrames wires the downstream receiver for streamed chat frames.
// Must be called before SendChat.
func (b *Bridge) SetChatFrames(frames ChatFrames) {
	b.chatMu.Lock()
	defer b.chatMu.Unlock()
	b.chatFrames = frames
}

// SendChat routes a chat message to the harness and registers the
// correlation so streamed frames find their way back. Returns the
// allocated correlation id.
func (b *Bridge) SendChat(text, sessionToken, requestID, threadID, model string) (string, error) {
	if !b.Connected() {
		return "", errors.Wrap(errors.ErrServiceUnavailable, "harness not connected")
	}

	corrID := fmt.Sprintf("chat-%d", b.chatSeq.Add(1))

	b.chatMu.Lock()
	b.purgeExpiredLocked(time.Now())
	b.pendingChat[corrID] = &pendingChat{
		sessionToken: sessionToken,
		requestID:    requestID,
		threadID:     threadID,
		deadline:     time.Now().Add(chatRequestTTL),
	}
	b.chatMu.Unlock()

	params, err := json.Marshal(chatSendParams{ID: corrID, Text: text, ThreadID: threadID, Model: model})
	if err != nil {
		b.dropChat(corrID)
		return "", errors.Wrap(err, "failed to marshal chat params")
	}

	if err := b.send(request{Type: "req", ID: corrID, Method: "chat.send", Params: params}); err != nil {
		b.dropChat(corrID)
		return "", err
	}
	return corrID, nil
}

// AbortChat asks the harness to stop streaming for a session. Safe when
// nothing is active.
func (b *Bridge) AbortChat(sessionToken string) {
	if !b.Connected() {
		return
	}

	b.chatMu.Lock()
	var ids []string
	for id, pc := range b.pendingChat {
		if pc.sessionToken == sessionToken {
			ids = append(ids, id)
		}
	}
	b.chatMu.Unlock()

	for _, id := range ids {
		params, _ := json.Marshal(map[string]string{"id": id})
		if err := b.send(request{Type: "req", ID: id, Method: "chat.abort", Params: params}); err != nil {
			b.log.Debugw("Chat abort send failed", "id", id, "error", err)
		}
		b.dropChat(id)
	}
}

// DropSession clears correlation entries owned by a disconnected session.
// The upstream chat job itself is left alone; it is a separate resource.
func (b *Bridge) DropSession(sessionToken string) {
	b.chatMu.Lock()
	defer b.chatMu.Unlock()
	for id, pc := range b.pendingChat {
		if pc.sessionToken == sessionToken {
			delete(b.pendingChat, id)
		}
	}
}

// HasPendingChat reports whether a correlation entry is still live
func (b *Bridge) HasPendingChat(corrID string) bool {
	b.chatMu.Lock()
	defer b.chatMu.Unlock()
	pc, ok := b.pendingChat[corrID]
	return ok && time.Now().Before(pc.deadline)
}

func (b *Bridge) dropChat(corrID string) {
	b.chatMu.Lock()
	delete(b.pendingChat, corrID)
	b.chatMu.Unlock()
}

// purgeExpiredLocked drops correlation entries whose deadline has passed.
// Caller must hold chatMu.
func (b *Bridge) purgeExpiredLocked(now time.Time) {
	for id, pc := range b.pendingChat {
		if now.After(pc.deadline) {
			b.log.Debugw("Dropping expired chat correlation", "id", id)
			delete(b.pendingChat, id)
		}
	}
}

// handleChatEvent routes chat.* events to the registered receiver.
// Returns true when the event was a chat frame (consumed here).
func (b *Bridge) handleChatEvent(event string, payload json.RawMessage) bool {
	switch event {
	case "chat.delta", "chat.tool", "chat.final", "chat.error":
	default:
		return false
	}

	var p chatEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		b.log.Warnw("Malformed chat event payload", "event", event, "error", err)
		return true
	}

	b.chatMu.Lock()
	pc, ok := b.pendingChat[p.ID]
	if ok && time.Now().After(pc.deadline) {
		delete(b.pendingChat, p.ID)
		ok = false
	}
	frames := b.chatFrames
	b.chatMu.Unlock()
	if !ok || frames == nil {
		return true
	}

	switch event {
	case "chat.delta":
		frames.ChatDelta(pc.sessionToken, pc.requestID, p.Delta)
	case "chat.tool":
		frames.ChatTool(pc.sessionToken, pc.requestID, p.Tool)
	case "chat.final":
		b.dropChat(p.ID)
		frames.ChatFinal(pc.sessionToken, pc.requestID, p.Content)
	case "chat.error":
		b.dropChat(p.ID)
		frames.ChatError(pc.sessionToken, pc.requestID, p.Error)
	}
	return true
}
