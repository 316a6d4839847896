package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/bridge"
	"github.com/CalvinMagezi/agent-hq-sub000/bus"
	"github.com/CalvinMagezi/agent-hq-sub000/config"
	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
	"github.com/CalvinMagezi/agent-hq-sub000/relay/auth"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
	"github.com/CalvinMagezi/agent-hq-sub000/version"
)

// Gateway lifecycle states
const (
	gatewayRunning int32 = iota
	gatewayDraining
	gatewayStopped
)

const shutdownGrace = 10 * time.Second

// Gateway is the single process front door: it accepts WebSocket
// upgrades and REST calls, runs the per-socket protocol state machine,
// and dispatches frames to the handlers.
type Gateway struct {
	cfg      *config.Config
	vault    *vault.Vault
	bus      *bus.Bus
	bridge   *bridge.Bridge
	llm      *openrouter.Client
	auth     *auth.Manager
	registry *Registry
	log      *zap.SugaredLogger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	state     atomic.Int32
	startedAt time.Time

	// WatchSet: jobId -> sessions to notify on status changes
	watchMu  sync.Mutex
	watchers map[string]map[string]struct{}

	// per-session command settings, keyed by session token
	settingsMu sync.Mutex
	settings   map[string]map[string]string

	// chat bookkeeping: requestId -> arming timer for upstream fallback
	chatMu       sync.Mutex
	armingTimers map[string]*time.Timer
	deltaIndex   map[string]*atomic.Int64

	wg sync.WaitGroup
}

// New wires a gateway from its collaborators
func New(cfg *config.Config, v *vault.Vault, b *bus.Bus, br *bridge.Bridge, llm *openrouter.Client) *Gateway {
	g := &Gateway{
		cfg:          cfg,
		vault:        v,
		bus:          b,
		bridge:       br,
		llm:          llm,
		auth:         auth.NewManager(cfg.Auth.APIKey),
		registry:     NewRegistry(),
		log:          logger.Named("relay"),
		watchers:     make(map[string]map[string]struct{}),
		settings:     make(map[string]map[string]string),
		armingTimers: make(map[string]*time.Timer),
		deltaIndex:   make(map[string]*atomic.Int64),
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}

	if br != nil {
		br.SetChatFrames(g)
		br.SetEventHandler(g.onBridgeEvent)
	}

	g.subscribeBusHandlers()
	return g
}

// checkOrigin allows same-host and explicitly configured origins. An
// empty allowlist admits everything; the gateway binds loopback by
// default and the API key is the real boundary.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Start binds the listener and serves until Stop. A bind failure is
// fatal at boot.
func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.cfg.Server.Host, g.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to bind %s", addr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc("/health", g.handleHealth)
	g.registerRESTRoutes(mux)

	g.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.startedAt = time.Now()
	g.state.Store(gatewayRunning)
	g.log.Infow("Gateway listening", "addr", addr, "open_mode", g.auth.OpenMode())

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			g.log.Errorw("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop drains the gateway: stop accepting, close clients, wait briefly
func (g *Gateway) Stop() {
	if !g.state.CompareAndSwap(gatewayRunning, gatewayDraining) {
		return
	}
	g.log.Infow("Gateway draining")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if g.httpServer != nil {
		g.httpServer.Shutdown(ctx)
	}

	for _, c := range g.registry.snapshot() {
		c.close()
	}

	g.wg.Wait()
	g.state.Store(gatewayStopped)
	g.log.Infow("Gateway stopped")
}

// handleRoot upgrades WebSocket requests; anything else on / is a 404
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}
	if g.state.Load() != gatewayRunning {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(g, conn)
	go client.writePump()
	go client.readPump()
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// dispatch routes one decoded frame through the state machine
func (g *Gateway) dispatch(c *Client, msg *InboundMessage) {
	if !c.authenticated() {
		if msg.Type == TypeAuth {
			g.handleAuth(c, msg)
			return
		}
		c.Send(errorFrame(ErrCodeNotAuthenticated, "authenticate first", msg.RequestID))
		return
	}

	switch msg.Type {
	case TypeAuth:
		// re-auth on a live session is a no-op ack
		c.Send(OutboundMessage{
			Type:          TypeAuthAck,
			Success:       boolPtr(true),
			SessionToken:  c.SessionToken(),
			ServerVersion: version.Version,
		})
	case TypePing:
		c.Send(pongFrame())
	case TypeJobSubmit:
		g.handleJobSubmit(c, msg)
	case TypeJobCancel:
		g.handleJobCancel(c, msg)
	case TypeChatSend:
		g.handleChatSend(c, msg)
	case TypeChatAbort:
		g.handleChatAbort(c, msg)
	case TypeSystemStatus:
		g.handleSystemStatus(c, msg)
	case TypeSystemSubscribe:
		g.handleSystemSubscribe(c, msg)
	case TypeCmdExecute:
		g.handleCommand(c, msg)
	case TypeTraceStatus:
		g.handleTraceStatus(c, msg)
	case TypeTraceCancelTask:
		g.handleTraceCancelTask(c, msg)
	default:
		c.Send(errorFrame(ErrCodeUnknownMessageType, "unknown type "+msg.Type, msg.RequestID))
	}
}

// handleAuth runs the NEW-state transition
func (g *Gateway) handleAuth(c *Client, msg *InboundMessage) {
	token := g.auth.ValidateAPIKey(msg.APIKey, msg.ClientID, msg.ClientType)
	if token == "" {
		c.Send(OutboundMessage{
			Type:    TypeAuthAck,
			Success: boolPtr(false),
			ErrText: "invalid API key",
		})
		c.closeWithPolicy("authentication failed")
		return
	}

	c.setSession(token, msg.ClientID, msg.ClientType)
	g.registry.Add(c)

	c.Send(OutboundMessage{
		Type:          TypeAuthAck,
		Success:       boolPtr(true),
		SessionToken:  token,
		ServerVersion: version.Version,
	})
	g.log.Infow("Client authenticated",
		"client_id", msg.ClientID, "client_type", msg.ClientType, "clients", g.registry.Size())
}

// disconnect finalizes a departed socket: registry, auth table, watch
// sets, chat correlation, and per-session settings all drop the session.
func (g *Gateway) disconnect(c *Client) {
	token := c.SessionToken()
	g.registry.Remove(c)
	if token == "" {
		return
	}

	g.auth.RemoveSession(token)
	g.dropWatcher(token)
	if g.bridge != nil {
		g.bridge.DropSession(token)
	}

	g.settingsMu.Lock()
	delete(g.settings, token)
	g.settingsMu.Unlock()

	g.log.Infow("Client disconnected", "clients", g.registry.Size())
}
