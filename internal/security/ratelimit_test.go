package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(EventMessage); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	// 6th should be denied.
	if err := rl.Allow(EventMessage); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 2})
	rl.now = func() time.Time { return now }

	// Fill the bucket.
	_ = rl.Allow(EventMessage)
	_ = rl.Allow(EventMessage)

	if err := rl.Allow(EventMessage); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	// Advance past the window.
	now = now.Add(61 * time.Second)

	if err := rl.Allow(EventMessage); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if err := rl.Allow("unknown_kind"); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
}

func TestRateLimiter_TokenBucket(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{TokensPerHour: 100})

	if err := rl.AllowN(EventToken, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.AllowN(EventToken, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.AllowN(EventToken, 1); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit for tokens")
	}
}

func TestRateLimiter_TokensUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if err := rl.AllowN(EventToken, 1_000_000); err != nil {
		t.Fatalf("expected unlimited tokens, got %v", err)
	}
}

func TestRateLimiter_MaxSessions(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MaxSessions: 42})
	if rl.MaxSessions() != 42 {
		t.Fatalf("MaxSessions() = %d, want 42", rl.MaxSessions())
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if rl.config.MaxSessions != 200 {
		t.Errorf("default MaxSessions = %d, want 200", rl.config.MaxSessions)
	}
	if rl.config.MessagesPerMin != 120 {
		t.Errorf("default MessagesPerMin = %d, want 120", rl.config.MessagesPerMin)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 1000})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rl.Allow(EventMessage)
		}()
	}
	wg.Wait()
}
