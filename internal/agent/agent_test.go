package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dash-lock-agent/internal/autherr"
	"dash-lock-agent/internal/config"
	"dash-lock-agent/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ServerURL = "http://127.0.0.1:1" // nothing listens here
	cfg.DataDir = t.TempDir()
	cfg.RequestTimeout = time.Second
	cfg.DevFakeAuthenticator = true
	return cfg
}

func newTestAgent(t *testing.T, cfg *config.Config) *Agent {
	t.Helper()
	a, err := New(cfg, logging.Initialize("error"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSnapshotFreshInstall(t *testing.T) {
	a := newTestAgent(t, testConfig(t))

	snap := a.Snapshot()
	assert.Len(t, snap.DeviceID, 32)
	assert.False(t, snap.HasCredential)
	assert.False(t, snap.IsOwner)
	assert.False(t, snap.HasSession)
	assert.True(t, snap.Support.Supported)
}

func TestDeviceIDStableAcrossAgents(t *testing.T) {
	cfg := testConfig(t)

	first := newTestAgent(t, cfg)
	id := first.Snapshot().DeviceID
	require.NoError(t, first.Close())

	second := newTestAgent(t, cfg)
	assert.Equal(t, id, second.Snapshot().DeviceID)
}

func TestRegisterFailsClosedWhenServerUnreachable(t *testing.T) {
	a := newTestAgent(t, testConfig(t))

	_, err := a.Register(context.Background())
	assert.Equal(t, autherr.CodeNetworkError, autherr.CodeOf(err))
	assert.False(t, a.Snapshot().HasCredential)
}

func TestUnsupportedWithoutPlatformIntegration(t *testing.T) {
	cfg := testConfig(t)
	cfg.DevFakeAuthenticator = false
	a := newTestAgent(t, cfg)

	assert.False(t, a.CheckSupport().Supported)

	_, err := a.Register(context.Background())
	assert.Equal(t, autherr.CodeUnsupported, autherr.CodeOf(err))
}

func TestSignOutIsIdempotent(t *testing.T) {
	a := newTestAgent(t, testConfig(t))
	a.SignOut()
	a.SignOut()
	assert.False(t, a.IsAuthenticated(context.Background(), false))
}
