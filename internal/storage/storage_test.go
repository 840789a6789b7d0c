package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dash-lock-agent/internal/logging"
)

// failingStore simulates an unavailable tier (private browsing, storage
// disabled, disk errors).
type failingStore struct{}

func (failingStore) Get(key string) (string, bool, error) { return "", false, errors.New("unavailable") }
func (failingStore) Put(key, value string) error          { return errors.New("unavailable") }
func (failingStore) Delete(key string) error              { return errors.New("unavailable") }

// mapStore is a healthy in-memory tier for tests.
type mapStore map[string]string

func (m mapStore) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
func (m mapStore) Put(key, value string) error { m[key] = value; return nil }
func (m mapStore) Delete(key string) error     { delete(m, key); return nil }

func TestResolverWriteFallback(t *testing.T) {
	logger := logging.Initialize("error")

	tests := []struct {
		name     string
		durable  Store
		session  Store
		wantTier Tier
	}{
		{"all tiers healthy", mapStore{}, mapStore{}, TierDurable},
		{"durable unavailable", failingStore{}, mapStore{}, TierSession},
		{"durable missing", nil, mapStore{}, TierSession},
		{"only memory", failingStore{}, failingStore{}, TierMemory},
		{"no tiers at all", nil, nil, TierMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.durable, tt.session, logger)
			r.Write("k", "v")

			assert.Equal(t, tt.wantTier, r.Tier())

			got, ok := r.Read("k")
			assert.True(t, ok)
			assert.Equal(t, "v", got)
		})
	}
}

func TestResolverReadPrefersDurable(t *testing.T) {
	logger := logging.Initialize("error")
	durable := mapStore{"k": "durable-value"}
	session := mapStore{"k": "session-value"}

	r := NewResolver(durable, session, logger)

	got, ok := r.Read("k")
	assert.True(t, ok)
	assert.Equal(t, "durable-value", got)
}

func TestResolverReadFindsWeakerTiers(t *testing.T) {
	logger := logging.Initialize("error")
	session := mapStore{"k": "session-value"}

	// Data written in a more persistent mode earlier must still be found
	// when the durable tier is now failing.
	r := NewResolver(failingStore{}, session, logger)

	got, ok := r.Read("k")
	assert.True(t, ok)
	assert.Equal(t, "session-value", got)
}

func TestResolverRemoveAllTiers(t *testing.T) {
	logger := logging.Initialize("error")
	durable := mapStore{"k": "a"}
	session := mapStore{"k": "b"}

	r := NewResolver(durable, session, logger)
	r.Write("k", "c") // lands in durable
	r.Remove("k")

	_, ok := r.Read("k")
	assert.False(t, ok)
	_, ok = durable["k"]
	assert.False(t, ok)
	_, ok = session["k"]
	assert.False(t, ok)
}

func TestResolverRemoveNeverPanicsOnFailingTiers(t *testing.T) {
	logger := logging.Initialize("error")
	r := NewResolver(failingStore{}, failingStore{}, logger)
	r.Write("k", "v")
	r.Remove("k")

	_, ok := r.Read("k")
	assert.False(t, ok)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put("device_id", "abc123"))
	require.NoError(t, store.Put("device_id", "def456")) // overwrite

	got, ok, err := store.Get("device_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def456", got)

	require.NoError(t, store.Delete("device_id"))
	require.NoError(t, store.Delete("device_id")) // idempotent

	_, ok, err = store.Get("device_id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	store, err := OpenSession(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put("session_token", "tok"))

	got, ok, err := store.Get("session_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", got)

	require.NoError(t, store.Delete("session_token"))
	_, ok, err = store.Get("session_token")
	require.NoError(t, err)
	assert.False(t, ok)

	path := store.path
	require.NoError(t, store.Close())
	assert.NoFileExists(t, path)
}
