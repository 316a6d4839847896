package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesPattern(t *testing.T) {
	cases := []struct {
		pattern string
		kind    string
		want    bool
	}{
		{"*", "job:completed", true},
		{"*", "anything", true},
		{"job:completed", "job:completed", true},
		{"job:completed", "job:failed", false},
		{"job:*", "job:completed", true},
		{"job:*", "job:failed", true},
		{"job:*", "task:completed", false},
		{"note:*", "note:modified", true},
		{"job", "job:completed", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchesPattern(tc.pattern, tc.kind),
			"pattern %q vs %q", tc.pattern, tc.kind)
	}
}

// drainSend pops one queued frame off a client's send channel, or fails.
func drainSend(t *testing.T, c *Client) OutboundMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("no frame queued")
		return OutboundMessage{}
	}
}

func TestBroadcastEventRespectsSubscriptions(t *testing.T) {
	g := newTestGateway(t, "")
	r := g.registry

	jobSub := newClient(g, nil)
	jobSub.setSession("token-jobs", "c1", "web")
	jobSub.AddSubscriptions([]string{"job:*"})
	r.Add(jobSub)

	allSub := newClient(g, nil)
	allSub.setSession("token-all", "c2", "web")
	allSub.AddSubscriptions([]string{"*"})
	r.Add(allSub)

	noSub := newClient(g, nil)
	noSub.setSession("token-none", "c3", "web")
	r.Add(noSub)

	r.BroadcastEvent("job:completed", OutboundMessage{Type: TypeSystemEvent, Event: "job:completed"})

	assert.Equal(t, "job:completed", drainSend(t, jobSub).Event)
	assert.Equal(t, "job:completed", drainSend(t, allSub).Event)
	assert.Empty(t, noSub.send)

	r.BroadcastEvent("note:modified", OutboundMessage{Type: TypeSystemEvent, Event: "note:modified"})
	assert.Empty(t, jobSub.send)
	assert.Equal(t, "note:modified", drainSend(t, allSub).Event)
}

func TestSubscriptionsOnlyGrow(t *testing.T) {
	g := newTestGateway(t, "")

	c := newClient(g, nil)
	c.AddSubscriptions([]string{"job:*"})
	require.True(t, c.Matches("job:completed"))

	c.AddSubscriptions([]string{"note:created"})
	assert.True(t, c.Matches("job:completed"))
	assert.True(t, c.Matches("note:created"))
	assert.False(t, c.Matches("task:completed"))

	// empty patterns are ignored
	c.AddSubscriptions([]string{""})
	assert.False(t, c.Matches("task:completed"))
}

func TestSendToByToken(t *testing.T) {
	g := newTestGateway(t, "")
	r := g.registry

	c := newClient(g, nil)
	c.setSession("token-a", "c1", "web")
	r.Add(c)

	assert.True(t, r.SendTo("token-a", OutboundMessage{Type: TypePong}))
	assert.Equal(t, TypePong, drainSend(t, c).Type)

	assert.False(t, r.SendTo("token-unknown", OutboundMessage{Type: TypePong}))
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	g := newTestGateway(t, "")
	r := g.registry

	c := newClient(g, nil)
	c.setSession("token-a", "c1", "web")
	r.Add(c)
	require.Equal(t, 1, r.Size())

	r.Remove(c)
	r.Remove(c)
	assert.Equal(t, 0, r.Size())
	assert.False(t, r.SendTo("token-a", OutboundMessage{Type: TypePong}))
}
