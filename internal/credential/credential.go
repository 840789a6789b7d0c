package credential

import (
	"github.com/sirupsen/logrus"

	"dash-lock-agent/internal/storage"
)

// Storage keys for the cached credential reference and the local owner
// marker. Key names are part of the persisted contract; renaming them
// orphans existing installs.
const (
	credentialIDKey = "credential_id"
	userIDKey       = "user_id"
	ownerKey        = "is_owner"
)

// Ref is the locally cached pointer to the credential this device holds.
type Ref struct {
	CredentialID string
	UserID       string
}

// Store reads and writes the cached credential reference across the storage
// tiers. It is a claim about local state only; the server remains the
// authority on whether the credential is honored.
type Store struct {
	resolver *storage.Resolver
	logger   *logrus.Entry
}

// NewStore creates a credential store over the storage tiers.
func NewStore(resolver *storage.Resolver, logger *logrus.Logger) *Store {
	return &Store{
		resolver: resolver,
		logger:   logger.WithField("component", "credential"),
	}
}

// Has reports whether both the credential id and user id are cached.
func (s *Store) Has() bool {
	ref, ok := s.Read()
	return ok && ref.CredentialID != "" && ref.UserID != ""
}

// Read returns the cached reference, if complete.
func (s *Store) Read() (Ref, bool) {
	credID, _ := s.resolver.Read(credentialIDKey)
	userID, _ := s.resolver.Read(userIDKey)
	if credID == "" || userID == "" {
		return Ref{}, false
	}
	return Ref{CredentialID: credID, UserID: userID}, true
}

// CachedUserID returns the cached logical user id even when no credential
// id is present, so re-registration keeps the user identity stable.
func (s *Store) CachedUserID() string {
	userID, _ := s.resolver.Read(userIDKey)
	return userID
}

// Write caches the credential reference.
func (s *Store) Write(ref Ref) {
	s.resolver.Write(credentialIDKey, ref.CredentialID)
	s.resolver.Write(userIDKey, ref.UserID)
	s.logger.WithField("tier", s.resolver.Tier()).Debug("Credential reference cached")
}

// Clear removes the cached reference and the owner marker from every tier.
func (s *Store) Clear() {
	s.resolver.Remove(credentialIDKey)
	s.resolver.Remove(userIDKey)
	s.resolver.Remove(ownerKey)
	s.logger.Debug("Credential reference cleared")
}

// MarkOwner records that the server confirmed this device as the owner.
func (s *Store) MarkOwner() {
	s.resolver.Write(ownerKey, "true")
}

// IsOwner reports the locally recorded owner marker. Like the session
// token, this is a claim, not proof.
func (s *Store) IsOwner() bool {
	v, ok := s.resolver.Read(ownerKey)
	return ok && v == "true"
}
