package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/heraldbot/herald/internal/provider"
)

// historyStore implements memory.HistoryStore on Redis lists: one list
// per session for messages, one string key for the summary.
type historyStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func (h *historyStore) historyKey(sessionID string) string {
	return h.prefix + "history:" + sessionID
}

func (h *historyStore) summaryKey(sessionID string) string {
	return h.prefix + "summary:" + sessionID
}

// Append pushes a message onto the session's list. When a TTL is
// configured, activity refreshes both session keys so an active
// conversation never expires mid-flight.
func (h *historyStore) Append(ctx context.Context, sessionID string, msg provider.LLMMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal message: %w", err)
	}

	pipe := h.client.Pipeline()
	pipe.RPush(ctx, h.historyKey(sessionID), data)
	if h.ttl > 0 {
		pipe.Expire(ctx, h.historyKey(sessionID), h.ttl)
		pipe.Expire(ctx, h.summaryKey(sessionID), h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: append message: %w", err)
	}
	return nil
}

// Recent returns the n most recent messages in chronological order.
// n <= 0 returns the full history.
func (h *historyStore) Recent(ctx context.Context, sessionID string, n int) ([]provider.LLMMessage, error) {
	start := int64(0)
	if n > 0 {
		// Negative start past the list head clamps to the full list.
		start = int64(-n)
	}

	items, err := h.client.LRange(ctx, h.historyKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load history: %w", err)
	}

	msgs := make([]provider.LLMMessage, 0, len(items))
	for _, item := range items {
		var msg provider.LLMMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("redis: unmarshal message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// SetSummary stores a compaction summary, replacing any previous one.
func (h *historyStore) SetSummary(ctx context.Context, sessionID, summary string) error {
	if err := h.client.Set(ctx, h.summaryKey(sessionID), summary, h.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set summary: %w", err)
	}
	return nil
}

// Summary returns the stored summary, or "" when none exists.
func (h *historyStore) Summary(ctx context.Context, sessionID string) (string, error) {
	summary, err := h.client.Get(ctx, h.summaryKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis: get summary: %w", err)
	}
	return summary, nil
}

// Purge removes all history and summary for a session.
func (h *historyStore) Purge(ctx context.Context, sessionID string) error {
	if err := h.client.Del(ctx, h.historyKey(sessionID), h.summaryKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis: purge session: %w", err)
	}
	return nil
}

// Len returns the number of messages stored for a session.
func (h *historyStore) Len(ctx context.Context, sessionID string) (int, error) {
	n, err := h.client.LLen(ctx, h.historyKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count messages: %w", err)
	}
	return int(n), nil
}
