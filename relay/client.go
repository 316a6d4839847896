package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Per-socket protocol states
const (
	stateNew int32 = iota
	stateAuthenticated
	stateClosed
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024

	sendBuffer = 256

	// inbound frame budget per client; bursts tolerate chatty frontends
	inboundRate  = 20
	inboundBurst = 60
)

// Client is one WebSocket connection moving through the protocol state
// machine NEW -> AUTHENTICATED -> CLOSED.
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan OutboundMessage
	log     *zap.SugaredLogger

	state atomic.Int32

	mu           sync.RWMutex
	sessionToken string
	clientID     string
	clientType   string
	subs         map[string]struct{}

	limiter *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(g *Gateway, conn *websocket.Conn) *Client {
	return &Client{
		gateway: g,
		conn:    conn,
		send:    make(chan OutboundMessage, sendBuffer),
		log:     g.log,
		subs:    make(map[string]struct{}),
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		closed:  make(chan struct{}),
	}
}

// SessionToken returns the token bound at auth time, empty before auth
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

func (c *Client) setSession(token, clientID, clientType string) {
	c.mu.Lock()
	c.sessionToken = token
	c.clientID = clientID
	c.clientType = clientType
	c.mu.Unlock()
	c.state.Store(stateAuthenticated)
}

// ClientType returns the tag supplied at auth time
func (c *Client) ClientType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientType
}

func (c *Client) authenticated() bool {
	return c.state.Load() == stateAuthenticated
}

// AddSubscriptions unions patterns into the set. Adding patterns never
// shrinks the matched event set.
func (c *Client) AddSubscriptions(patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range patterns {
		if p != "" {
			c.subs[p] = struct{}{}
		}
	}
}

// Matches reports whether any subscribed pattern matches the event kind
func (c *Client) Matches(eventKind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for p := range c.subs {
		if matchesPattern(p, eventKind) {
			return true
		}
	}
	return false
}

// Send queues a frame for the write pump. A full buffer drops the frame
// and closes the client; a receiver that slow is not keeping up.
func (c *Client) Send(msg OutboundMessage) {
	select {
	case <-c.closed:
	case c.send <- msg:
	default:
		c.log.Warnw("Client send buffer full, closing",
			"client_id", c.clientID, "type", msg.Type)
		c.close()
	}
}

// close tears the connection down once
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosed)
		close(c.closed)
		c.conn.Close()
	})
}

// closeWithPolicy sends a close control frame before tearing down,
// used for auth failures (policy violation, 1008).
func (c *Client) closeWithPolicy(reason string) {
	deadline := time.Now().Add(writeWait)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	c.close()
}

// throttled reports whether the inbound frame budget is exhausted,
// telling the client so when it is. Throttling never closes the socket.
func (c *Client) throttled() bool {
	if c.limiter.Allow() {
		return false
	}
	c.Send(errorFrame(ErrCodeRateLimited, "rate limit exceeded", ""))
	return true
}

// readPump owns all reads on the socket and drives dispatch
func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugw("Client read error", "error", err)
			}
			return
		}

		if c.throttled() {
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Send(errorFrame(ErrCodeInvalidJSON, "frame is not valid JSON", ""))
			continue
		}

		c.gateway.dispatch(c, &msg)
	}
}

// writePump owns all writes on the socket; frames leave in queue order
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
