package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dash-lock-agent/internal/logging"
	"dash-lock-agent/internal/storage"
)

type mapStore map[string]string

func (m mapStore) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
func (m mapStore) Put(key, value string) error { m[key] = value; return nil }
func (m mapStore) Delete(key string) error     { delete(m, key); return nil }

func newStore(t *testing.T) *Store {
	t.Helper()
	logger := logging.Initialize("error")
	return NewStore(storage.NewResolver(mapStore{}, mapStore{}, logger), logger)
}

func TestStoreRoundTrip(t *testing.T) {
	s := newStore(t)

	assert.False(t, s.Has())
	_, ok := s.Read()
	assert.False(t, ok)

	s.Write(Ref{CredentialID: "cred-1", UserID: "user-1"})

	assert.True(t, s.Has())
	ref, ok := s.Read()
	assert.True(t, ok)
	assert.Equal(t, Ref{CredentialID: "cred-1", UserID: "user-1"}, ref)
}

func TestHasRequiresBothFields(t *testing.T) {
	s := newStore(t)

	s.Write(Ref{CredentialID: "cred-1"}) // no user id
	assert.False(t, s.Has())

	s.Clear()
	s.Write(Ref{UserID: "user-1"}) // no credential id
	assert.False(t, s.Has())
}

func TestCachedUserIDSurvivesPartialState(t *testing.T) {
	s := newStore(t)
	s.Write(Ref{UserID: "user-1"})

	assert.Equal(t, "user-1", s.CachedUserID())
	assert.False(t, s.Has())
}

func TestClearRemovesEverything(t *testing.T) {
	s := newStore(t)
	s.Write(Ref{CredentialID: "cred-1", UserID: "user-1"})
	s.MarkOwner()

	s.Clear()
	s.Clear() // idempotent

	assert.False(t, s.Has())
	assert.False(t, s.IsOwner())
	assert.Empty(t, s.CachedUserID())
}

func TestOwnerMarker(t *testing.T) {
	s := newStore(t)
	assert.False(t, s.IsOwner())

	s.MarkOwner()
	assert.True(t, s.IsOwner())
}
