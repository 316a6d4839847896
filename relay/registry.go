package relay

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/logger"
)

// Sender is the capability surface handlers get instead of the full
// registry, breaking the handler/registry/socket cycle.
type Sender interface {
	// SendTo delivers to the session with the given token; reports
	// whether any session matched.
	SendTo(sessionToken string, msg OutboundMessage) bool
	// Broadcast delivers to every live session, best effort.
	Broadcast(msg OutboundMessage)
	// BroadcastEvent delivers only to sessions whose subscription set
	// matches the event kind.
	BroadcastEvent(eventKind string, msg OutboundMessage)
}

// Registry tracks live authenticated clients and their subscriptions.
// Writes are serialized; broadcasts iterate a snapshot so a send in
// flight never observes a half-registered session.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	byToken map[string]*Client
	log     *zap.SugaredLogger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		byToken: make(map[string]*Client),
		log:     logger.Named("registry"),
	}
}

// Add registers an authenticated client under its session token
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
	r.byToken[c.SessionToken()] = c
}

// Remove drops a client. Idempotent.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	if token := c.SessionToken(); token != "" && r.byToken[token] == c {
		delete(r.byToken, token)
	}
}

// Size returns the live client count
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Subscribe unions patterns into a client's subscription set
func (r *Registry) Subscribe(c *Client, patterns []string) {
	c.AddSubscriptions(patterns)
}

// SendTo implements Sender
func (r *Registry) SendTo(sessionToken string, msg OutboundMessage) bool {
	r.mu.RLock()
	c, ok := r.byToken[sessionToken]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	c.Send(msg)
	return true
}

// Broadcast implements Sender
func (r *Registry) Broadcast(msg OutboundMessage) {
	for _, c := range r.snapshot() {
		c.Send(msg)
	}
}

// BroadcastEvent implements Sender
func (r *Registry) BroadcastEvent(eventKind string, msg OutboundMessage) {
	for _, c := range r.snapshot() {
		if c.Matches(eventKind) {
			c.Send(msg)
		}
	}
}

func (r *Registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// matchesPattern implements the three recognized pattern forms: global
// wildcard, exact, and "prefix:*".
func matchesPattern(pattern, eventKind string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == eventKind {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		return strings.HasPrefix(eventKind, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
