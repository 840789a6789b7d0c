package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var sessionBucket = []byte("session")

// SessionStore backs the per-session tier with a bolt file under the OS
// temp directory. Each process gets a fresh store; Close removes the file,
// so values written here live no longer than the session that wrote them.
type SessionStore struct {
	db   *bolt.DB
	path string
}

// OpenSession creates the session-scoped store. dir may be empty to use
// the OS temp directory.
func OpenSession(dir string) (*SessionStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("failed to generate session suffix: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("dash-lock-session-%s.db", hex.EncodeToString(suffix)))

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &SessionStore{db: db, path: path}, nil
}

// Get retrieves a value by key.
func (s *SessionStore) Get(key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get session value %s: %w", key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

// Put stores a value by key.
func (s *SessionStore) Put(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to put session value %s: %w", key, err)
	}
	return nil
}

// Delete removes a value by key.
func (s *SessionStore) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete session value %s: %w", key, err)
	}
	return nil
}

// Close closes the store and removes its backing file.
func (s *SessionStore) Close() error {
	err := s.db.Close()
	if removeErr := os.Remove(s.path); err == nil {
		err = removeErr
	}
	return err
}
