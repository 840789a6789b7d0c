package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/storage"
	"dash-lock-agent/internal/wire"
)

// sessionTokenKey is the storage key for the bearer token. It lives only
// in the per-session tier; durable storage must never see it.
const sessionTokenKey = "session_token"

// Verifier is the remote service call that confirms a session token.
type Verifier interface {
	VerifySession(ctx context.Context, sessionToken, deviceID string) (*wire.SessionVerifyResponse, error)
}

// DeviceIdentity supplies the device id sent alongside verification calls.
type DeviceIdentity interface {
	DeviceID() string
}

// Manager owns the short-lived session token. Presence of a token is a
// claim, not proof: any privileged operation must be willing to have the
// server reject it.
type Manager struct {
	mu         sync.Mutex
	store      storage.Store
	memory     map[string]string
	verifier   Verifier
	identity   DeviceIdentity
	verifiedAt time.Time
	logger     *logrus.Entry
}

// NewManager creates a session manager. store is the per-session tier and
// may be nil, in which case the token lives only in process memory.
func NewManager(store storage.Store, verifier Verifier, identity DeviceIdentity, logger *logrus.Logger) *Manager {
	return &Manager{
		store:    store,
		memory:   make(map[string]string),
		verifier: verifier,
		identity: identity,
		logger:   logger.WithField("component", "session"),
	}
}

// Store persists the token to per-session storage and stamps local
// verified state.
func (m *Manager) Store(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Put(sessionTokenKey, token); err != nil {
			m.logger.WithError(err).Warn("Session tier write failed, keeping token in memory")
			m.memory[sessionTokenKey] = token
		}
	} else {
		m.memory[sessionTokenKey] = token
	}
	m.verifiedAt = time.Now()
	m.logger.Debug("Session token stored")
}

// Token returns the current session token, if any.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token()
}

func (m *Manager) token() (string, bool) {
	if m.store != nil {
		if token, ok, err := m.store.Get(sessionTokenKey); err == nil && ok && token != "" {
			return token, true
		}
	}
	token, ok := m.memory[sessionTokenKey]
	return token, ok && token != ""
}

// Clear removes the token and resets verified state. Idempotent.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
}

func (m *Manager) clear() {
	if m.store != nil {
		if err := m.store.Delete(sessionTokenKey); err != nil {
			m.logger.WithError(err).Debug("Session tier delete failed")
		}
	}
	delete(m.memory, sessionTokenKey)
	m.verifiedAt = time.Time{}
}

// VerifyWithServer confirms the token with the remote service. Any
// explicitly non-confirming response clears the session: the module never
// holds a token the server has rejected. Transport failures leave the
// token in place and surface the error, since the server said nothing.
func (m *Manager) VerifyWithServer(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.token()
	if !ok {
		return false, nil
	}

	resp, err := m.verifier.VerifySession(ctx, token, m.identity.DeviceID())
	if err != nil {
		m.logger.WithError(err).Warn("Session verification unreachable")
		return false, err
	}

	if !resp.Success || !resp.Verified {
		m.logger.Info("Server rejected session token, clearing local session")
		m.clear()
		return false, nil
	}

	m.verifiedAt = time.Now()
	return true, nil
}

// IsVerified reports session validity. Without serverCheck, presence of a
// token is treated as provisionally valid; callers needing a strong
// guarantee must pass serverCheck=true.
func (m *Manager) IsVerified(ctx context.Context, serverCheck bool) bool {
	if !serverCheck {
		_, ok := m.Token()
		return ok
	}
	ok, err := m.VerifyWithServer(ctx)
	return ok && err == nil
}

// VerifiedAt returns the local timestamp of the last confirmed state.
func (m *Manager) VerifiedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verifiedAt.IsZero() {
		return time.Time{}, false
	}
	return m.verifiedAt, true
}

// ExpiryHint peeks at the token's exp claim without verifying the
// signature, purely for status display. Opaque non-JWT tokens simply have
// no hint.
func (m *Manager) ExpiryHint() (time.Time, bool) {
	token, ok := m.Token()
	if !ok {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
