// Package auth owns the gateway credential check and the ephemeral
// session token table.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/logger"
)

// Session is the metadata kept per live token
type Session struct {
	Token       string
	ClientID    string
	ClientType  string
	ConnectedAt time.Time
}

// Manager validates the process API key and mints session tokens. An
// empty configured key puts the manager in open mode: any presented key
// authenticates, and REST calls without a header pass. That matches
// local-only deployments where the loopback bind is the boundary.
type Manager struct {
	apiKey string
	log    *zap.SugaredLogger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager for the configured key
func NewManager(apiKey string) *Manager {
	return &Manager{
		apiKey:   apiKey,
		log:      logger.Named("auth"),
		sessions: make(map[string]*Session),
	}
}

// OpenMode reports whether the manager accepts any credential
func (m *Manager) OpenMode() bool { return m.apiKey == "" }

// ValidateAPIKey checks a presented key and, on success, mints a new
// session token. Returns empty string on failure.
func (m *Manager) ValidateAPIKey(key, clientID, clientType string) string {
	if !m.OpenMode() {
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
			return ""
		}
	}

	token := newToken()
	session := &Session{
		Token:       token,
		ClientID:    clientID,
		ClientType:  clientType,
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	m.sessions[token] = session
	m.mu.Unlock()

	m.log.Infow("Session created", "client_id", clientID, "client_type", clientType)
	return token
}

// ValidateSession returns the session for a live token, or nil
func (m *Manager) ValidateSession(token string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[token]
}

// ValidateBearer accepts "Bearer <value>" where value is either the raw
// configured key or a live session token. The scheme is case-insensitive.
// In open mode an absent header passes.
func (m *Manager) ValidateBearer(header string) bool {
	if header == "" {
		return m.OpenMode()
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}
	value := strings.TrimSpace(parts[1])

	if !m.OpenMode() && subtle.ConstantTimeCompare([]byte(value), []byte(m.apiKey)) == 1 {
		return true
	}
	return m.ValidateSession(value) != nil
}

// RemoveSession invalidates a token. Idempotent.
func (m *Manager) RemoveSession(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// SessionCount returns the number of live sessions
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// newToken returns 256 bits of entropy as hex
func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
