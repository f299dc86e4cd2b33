package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when an event exceeds its rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Event kinds accepted by RateLimiter.Allow and AllowN.
const (
	EventMessage = "message"
	EventToken   = "token"
)

// RateLimitConfig bounds inbound volume across all chats.
type RateLimitConfig struct {
	// MaxSessions caps concurrently tracked sessions.
	MaxSessions int
	// MessagesPerMin caps accepted inbound messages per minute.
	MessagesPerMin int
	// TokensPerHour caps model tokens per hour. Zero means unlimited.
	TokensPerHour int
}

func rateLimitDefaults() RateLimitConfig {
	return RateLimitConfig{
		MaxSessions:    200,
		MessagesPerMin: 120,
		TokensPerHour:  0,
	}
}

// RateLimiter implements sliding-window rate limiting. Each bucket keeps
// the timestamps of recent events inside its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  RateLimitConfig
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Non-positive fields fall back to defaults; TokensPerHour stays
// unlimited when zero.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitDefaults()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaults.MaxSessions
	}
	if cfg.MessagesPerMin <= 0 {
		cfg.MessagesPerMin = defaults.MessagesPerMin
	}

	rl := &RateLimiter{
		config: cfg,
		now:    time.Now,
		buckets: map[string]*bucket{
			EventMessage: {
				window: time.Minute,
				limit:  cfg.MessagesPerMin,
			},
		},
	}

	if cfg.TokensPerHour > 0 {
		rl.buckets[EventToken] = &bucket{
			window: time.Hour,
			limit:  cfg.TokensPerHour,
		}
	}

	return rl
}

// Allow checks whether one event of the given kind is allowed, recording
// it when it is. Unknown kinds pass: no bucket means no limit.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN checks whether n events of the given kind are allowed. Used for
// token accounting where one model call consumes many tokens.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events)+n > b.limit {
		return ErrRateLimited
	}

	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// MaxSessions returns the configured cap on concurrent sessions.
func (rl *RateLimiter) MaxSessions() int {
	return rl.config.MaxSessions
}

// evict drops events that slid out of the window. Events are appended
// in time order, so a prefix scan suffices.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
