// Package bridge maintains the outbound WebSocket connection to the
// local agent harness: request/response correlation over a single
// socket, plus republication of harness progress events.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
)

const (
	dialTimeout       = 3 * time.Second
	reconnectInterval = 5 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4 * 1024 * 1024
)

// Request frame sent to the harness
type request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// frame covers every inbound shape: responses and events
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the harness's answer to one request
type Response struct {
	OK     bool
	Result json.RawMessage
	Error  string
}

// EventHandler receives harness-originated events (e.g. trace.progress)
type EventHandler func(event string, data json.RawMessage)

// Bridge owns the harness connection. It reconnects forever on a fixed
// interval; requests issued while disconnected fail fast.
type Bridge struct {
	endpoint string
	log      *zap.SugaredLogger

	onEvent EventHandler

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pending   map[string]chan Response
	pendingMu sync.Mutex

	chatMu      sync.Mutex
	pendingChat map[string]*pendingChat
	chatFrames  ChatFrames

	nextID    atomic.Uint64
	chatSeq   atomic.Uint64
	connected atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a bridge to ws://host:port/. An empty host disables the
// bridge entirely; Connected stays false and requests fail fast.
func New(host string, port int, onEvent EventHandler) *Bridge {
	endpoint := ""
	if host != "" && port > 0 {
		u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/"}
		endpoint = u.String()
	}
	return &Bridge{
		endpoint:    endpoint,
		log:         logger.Named("bridge"),
		onEvent:     onEvent,
		pending:     make(map[string]chan Response),
		pendingChat: make(map[string]*pendingChat),
		done:        make(chan struct{}),
	}
}

// Enabled reports whether a harness endpoint is configured
func (b *Bridge) Enabled() bool { return b.endpoint != "" }

// SetEventHandler replaces the event callback. Call before Start.
func (b *Bridge) SetEventHandler(h EventHandler) {
	b.onEvent = h
}

// Connected reports whether the harness socket is currently up
func (b *Bridge) Connected() bool { return b.connected.Load() }

// Start launches the connect/reconnect loop. No-op when disabled.
func (b *Bridge) Start() {
	if !b.Enabled() {
		b.log.Infow("Bridge disabled; no harness endpoint configured")
		return
	}
	b.wg.Add(1)
	go b.connectLoop()
}

// Stop tears the bridge down and fails all in-flight requests
func (b *Bridge) Stop() {
	close(b.done)
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	b.failAllPending("bridge shutting down")
}

func (b *Bridge) connectLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		default:
		}

		if err := b.connectOnce(); err != nil {
			b.log.Debugw("Bridge connect failed", "endpoint", b.endpoint, "error", err)
		}

		select {
		case <-b.done:
			return
		case <-time.After(reconnectInterval):
		}
	}
}

func (b *Bridge) connectOnce() error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(b.endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to dial harness")
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.connected.Store(true)
	b.log.Infow("Bridge connected", "endpoint", b.endpoint)

	pingDone := make(chan struct{})
	go b.pingLoop(conn, pingDone)

	b.readLoop(conn)

	close(pingDone)
	b.connected.Store(false)
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
	conn.Close()
	b.failAllPending("bridge connection lost")
	b.log.Warnw("Bridge disconnected", "endpoint", b.endpoint)
	return nil
}

func (b *Bridge) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			b.log.Warnw("Bridge received malformed frame", "error", err)
			continue
		}

		switch f.Type {
		case "res":
			b.resolve(f.ID, Response{OK: f.OK, Result: f.Result, Error: f.Error})
		case "event":
			if b.handleChatEvent(f.Event, f.Payload) {
				continue
			}
			if b.onEvent != nil {
				b.onEvent(f.Event, f.Payload)
			}
		default:
			b.log.Debugw("Bridge ignoring frame", "type", f.Type)
		}
	}
}

// Call sends a request and waits for the correlated response or context
// cancellation. Fails immediately with ErrServiceUnavailable when the
// harness is not connected.
func (b *Bridge) Call(ctx context.Context, method string, params any) (Response, error) {
	if !b.Connected() {
		return Response{}, errors.Wrap(errors.ErrServiceUnavailable, "harness not connected")
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Response{}, errors.Wrap(err, "failed to marshal bridge params")
		}
		raw = data
	}

	id := fmt.Sprintf("br-%d", b.nextID.Add(1))
	ch := make(chan Response, 1)

	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	if err := b.send(request{Type: "req", ID: id, Method: method, Params: raw}); err != nil {
		return Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, errors.Wrap(errors.ErrTimeout, "bridge call timed out")
	case <-b.done:
		return Response{}, errors.Wrap(errors.ErrServiceUnavailable, "bridge shutting down")
	}
}

func (b *Bridge) send(req request) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return errors.Wrap(errors.ErrServiceUnavailable, "harness not connected")
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		return errors.Wrap(err, "bridge write failed")
	}
	return nil
}

func (b *Bridge) resolve(id string, resp Response) {
	b.pendingMu.Lock()
	ch, ok := b.pending[id]
	b.pendingMu.Unlock()
	if ok {
		ch <- resp
	}
}

func (b *Bridge) failAllPending(reason string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for id, ch := range b.pending {
		select {
		case ch <- Response{OK: false, Error: reason}:
		default:
		}
		delete(b.pending, id)
	}
}
