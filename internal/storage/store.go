package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// KeyValueStore is the persistence contract for client-side state.
// Multi-key writes and deletes are all-or-nothing.
type KeyValueStore interface {
	// Get returns the value for key. The bool is false when the key is absent.
	Get(key string) (string, bool, error)
	// GetMany returns the values present for keys. Absent keys are omitted.
	GetMany(keys ...string) (map[string]string, error)
	// SetMany upserts every entry in one transaction.
	SetMany(values map[string]string) error
	// DeleteMany removes every key in one transaction.
	DeleteMany(keys ...string) error
	Close() error
}

// SQLiteStore implements KeyValueStore on a SQLite file. When an encryption
// key is configured, values are sealed with AES-GCM before they hit disk.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// A nil encryptionKey stores values in plain text.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Only the owner should read session material.
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		encrypted INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create client_state table: %w", err)
	}
	return nil
}

// Get retrieves a single value.
func (s *SQLiteStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	var encrypted bool
	err := s.db.QueryRow(
		"SELECT value, encrypted FROM client_state WHERE key = ?",
		key,
	).Scan(&value, &encrypted)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", key, err)
	}

	plain, err := s.open(key, value, encrypted)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

// GetMany retrieves several values in a single query.
func (s *SQLiteStore) GetMany(keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.Query(
		"SELECT key, value, encrypted FROM client_state WHERE key IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query client state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		var encrypted bool
		if err := rows.Scan(&key, &value, &encrypted); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		plain, err := s.open(key, value, encrypted)
		if err != nil {
			return nil, err
		}
		result[key] = plain
	}

	return result, rows.Err()
}

// SetMany upserts all entries atomically.
func (s *SQLiteStore) SetMany(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range values {
		stored, encrypted, err := s.seal(value)
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", key, err)
		}
		_, err = tx.Exec(`
			INSERT INTO client_state (key, value, encrypted, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				encrypted = excluded.encrypted,
				updated_at = excluded.updated_at
		`, key, stored, encrypted, now)
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client state: %w", err)
	}
	return nil
}

// DeleteMany removes all keys atomically. Missing keys are not an error.
func (s *SQLiteStore) DeleteMany(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM client_state WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client state: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) seal(value string) (string, bool, error) {
	if s.encryptionKey == nil {
		return value, false, nil
	}
	sealed, err := Encrypt([]byte(value), s.encryptionKey)
	if err != nil {
		return "", false, err
	}
	return sealed, true, nil
}

func (s *SQLiteStore) open(key, value string, encrypted bool) (string, error) {
	if !encrypted {
		return value, nil
	}
	if s.encryptionKey == nil {
		return "", fmt.Errorf("value for %s is encrypted but no key is configured", key)
	}
	plain, err := Decrypt(value, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	return string(plain), nil
}

// Ensure SQLiteStore implements KeyValueStore
var _ KeyValueStore = (*SQLiteStore)(nil)
