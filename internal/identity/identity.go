package identity

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/storage"
)

// deviceIDKey is the storage key holding the device identifier.
const deviceIDKey = "device_id"

// Manager derives and persists the stable device identifier. The identifier
// is a correlation key, never a secret: 16 random bytes, hex encoded,
// generated once per storage lifetime.
type Manager struct {
	resolver *storage.Resolver
	logger   *logrus.Entry
}

// NewManager creates a device identity manager over the storage tiers.
func NewManager(resolver *storage.Resolver, logger *logrus.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		logger:   logger.WithField("component", "identity"),
	}
}

// DeviceID returns the cached device identifier, generating and persisting
// a fresh one if no tier holds it. It never fails: if storage is entirely
// unavailable the id lives only in memory, which weakens correlation but
// never blocks authentication.
func (m *Manager) DeviceID() string {
	if id, ok := m.resolver.Read(deviceIDKey); ok && id != "" {
		return id
	}

	id := generateID()
	m.resolver.Write(deviceIDKey, id)
	m.logger.WithFields(logrus.Fields{
		"device_id": id,
		"tier":      m.resolver.Tier(),
	}).Info("Generated new device identifier")

	return id
}

// generateID produces 16 cryptographically random bytes, hex encoded.
func generateID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// panicking mirrors how the runtime treats this condition.
		panic("identity: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
