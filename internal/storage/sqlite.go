package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore backs the durable tier with a small key-value table.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if necessary) the durable state database at
// the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS device_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create device_state table: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

// Get retrieves a value by key.
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM device_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores a value by key.
func (s *SQLiteStore) Put(key, value string) error {
	query := `
		INSERT OR REPLACE INTO device_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`
	if _, err := s.conn.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// Delete removes a value by key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.conn.Exec("DELETE FROM device_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
