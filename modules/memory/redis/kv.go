package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// kvStore implements memory.KVStore on plain string keys. Entries
// never expire: the Telegram update offset lives here and must
// survive a quiet weekend.
type kvStore struct {
	client *goredis.Client
	prefix string
}

func (s *kvStore) kvKey(key string) string {
	return s.prefix + "kv:" + key
}

// Put stores value under key, replacing any previous value.
func (s *kvStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.kvKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: put %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key. ok is false when the key is absent.
func (s *kvStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.kvKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis: get %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *kvStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.kvKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete %q: %w", key, err)
	}
	return nil
}
