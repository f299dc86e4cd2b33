package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// kvStore implements memory.KVStore backed by SQLite. The Telegram
// poller keeps its update offset here so a restart never replays
// handled updates.
type kvStore struct {
	db *sql.DB
}

// Put stores value under key, replacing any previous value.
func (s *kvStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key. ok is false when the key is absent.
func (s *kvStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *kvStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", key, err)
	}
	return nil
}
