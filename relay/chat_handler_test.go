package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDeltaIndexMonotonicPerRequest(t *testing.T) {
	g := newTestGateway(t, "")

	assert.Equal(t, 0, g.nextDeltaIndex("req-a"))
	assert.Equal(t, 1, g.nextDeltaIndex("req-a"))
	assert.Equal(t, 2, g.nextDeltaIndex("req-a"))

	// a different request gets its own sequence
	assert.Equal(t, 0, g.nextDeltaIndex("req-b"))

	// clearing restarts the sequence for a reused request id
	g.clearDeltaIndex("req-a")
	assert.Equal(t, 0, g.nextDeltaIndex("req-a"))
}

func TestResolveModelPrecedence(t *testing.T) {
	g := newTestGateway(t, "")

	assert.Equal(t, "anthropic/claude-sonnet-4", g.resolveModel("session-1", ""))

	g.setSetting("session-1", "model", "openai/gpt-4o")
	assert.Equal(t, "openai/gpt-4o", g.resolveModel("session-1", ""))

	// an explicit override beats the session setting
	assert.Equal(t, "meta-llama/llama-3-70b", g.resolveModel("session-1", "meta-llama/llama-3-70b"))
}

func TestDisarmReportsArmedState(t *testing.T) {
	g := newTestGateway(t, "")
	c := authedClient(g, "token-1")

	assert.False(t, g.disarm("req-1"))

	msg := &InboundMessage{Type: TypeChatSend, RequestID: "req-1", Content: "hi"}
	g.armFallback(c, msg, "anthropic/claude-sonnet-4")

	assert.True(t, g.disarm("req-1"))
	assert.False(t, g.disarm("req-1"))
}

func TestUpstreamFinalStandsDownFallback(t *testing.T) {
	g := newTestGateway(t, "")
	c := authedClient(g, "token-1")

	msg := &InboundMessage{Type: TypeChatSend, RequestID: "req-1", Content: "hi"}
	g.armFallback(c, msg, "anthropic/claude-sonnet-4")
	g.nextDeltaIndex("req-1")

	g.ChatFinal("token-1", "req-1", "final answer")

	frame := drainSend(t, c)
	assert.Equal(t, TypeChatFinal, frame.Type)
	assert.Equal(t, "final answer", frame.Content)

	// timer is gone and the delta sequence restarted
	assert.False(t, g.disarm("req-1"))
	assert.Equal(t, 0, g.nextDeltaIndex("req-1"))
}

func TestUpstreamErrorIsTerminal(t *testing.T) {
	g := newTestGateway(t, "")
	c := authedClient(g, "token-1")

	msg := &InboundMessage{Type: TypeChatSend, RequestID: "req-1", Content: "hi"}
	g.armFallback(c, msg, "anthropic/claude-sonnet-4")

	g.ChatError("token-1", "req-1", "upstream exploded")

	frame := drainSend(t, c)
	assert.Equal(t, TypeError, frame.Type)
	assert.Equal(t, ErrCodeChatError, frame.Code)
	assert.Equal(t, "req-1", frame.RequestID)
	assert.False(t, g.disarm("req-1"))
}

func TestUpstreamDeltaCarriesIndex(t *testing.T) {
	g := newTestGateway(t, "")
	c := authedClient(g, "token-1")

	g.ChatDelta("token-1", "req-1", "Hel")
	g.ChatDelta("token-1", "req-1", "lo")

	first := drainSend(t, c)
	require.Equal(t, TypeChatDelta, first.Type)
	require.NotNil(t, first.Index)
	assert.Equal(t, 0, *first.Index)
	assert.Equal(t, "Hel", first.Delta)

	second := drainSend(t, c)
	require.NotNil(t, second.Index)
	assert.Equal(t, 1, *second.Index)
	assert.Equal(t, "lo", second.Delta)
}

func TestChatAbortEchoes(t *testing.T) {
	g := newTestGateway(t, "")
	c := authedClient(g, "token-1")

	msg := &InboundMessage{Type: TypeChatSend, RequestID: "req-1", Content: "hi"}
	g.armFallback(c, msg, "anthropic/claude-sonnet-4")

	g.dispatch(c, &InboundMessage{Type: TypeChatAbort, RequestID: "req-1"})

	frame := drainSend(t, c)
	assert.Equal(t, TypeChatAbort, frame.Type)
	assert.Equal(t, "req-1", frame.RequestID)
	assert.False(t, g.disarm("req-1"))
}
