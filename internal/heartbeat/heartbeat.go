// Package heartbeat periodically pokes recently active sessions so the
// agent can follow up on conversations the user walked away from. A
// webhook trigger lets an external scheduler force a tick between
// intervals.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/heraldbot/herald/internal/metrics"
)

// AckToken is the reply a model produces when a poke needs no
// user-visible message. The router suppresses replies equal to it.
const AckToken = "HERALD_OK"

// DefaultPrompt is sent on each poke unless the operator configures
// their own.
const DefaultPrompt = "This is a scheduled check-in. Look at the conversation so far: " +
	"if there is something unresolved or worth following up on, write a short message to the user. " +
	"If nothing needs attention, reply with exactly " + AckToken + " and nothing else."

// Sentinel errors for heartbeat operations.
var (
	ErrAlreadyStarted = errors.New("heartbeat: already started")
	ErrNotStarted     = errors.New("heartbeat: not started")
	ErrInvalidQuiet   = errors.New("heartbeat: invalid quiet hours format")
)

// QuietHours defines a blackout window during which no pokes are sent.
// Format: "HH:MM-HH:MM" (24-hour). Supports midnight wrap (e.g.,
// "23:00-07:00").
type QuietHours struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

// ParseQuietHours parses a "HH:MM-HH:MM" string into QuietHours.
func ParseQuietHours(s string) (QuietHours, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return QuietHours{}, fmt.Errorf("%w: expected HH:MM-HH:MM, got %q", ErrInvalidQuiet, s)
	}

	start, err := parseTimeOffset(strings.TrimSpace(parts[0]))
	if err != nil {
		return QuietHours{}, fmt.Errorf("%w: start: %w", ErrInvalidQuiet, err)
	}

	end, err := parseTimeOffset(strings.TrimSpace(parts[1]))
	if err != nil {
		return QuietHours{}, fmt.Errorf("%w: end: %w", ErrInvalidQuiet, err)
	}

	return QuietHours{Start: start, End: end}, nil
}

// parseTimeOffset parses "HH:MM" into a Duration from midnight.
func parseTimeOffset(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}

	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour: %q", parts[0])
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute: %q", parts[1])
	}

	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %02d:%02d", h, m)
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// IsQuiet reports whether t falls within the quiet window.
// The caller is responsible for converting t to the desired timezone.
func (q QuietHours) IsQuiet(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second

	if q.Start <= q.End {
		// Normal range: e.g., 02:00-06:00
		return offset >= q.Start && offset < q.End
	}
	// Midnight wrap: e.g., 23:00-07:00
	return offset >= q.Start || offset < q.End
}

// SessionIterator enumerates active sessions. Keeping it an interface
// here avoids a dependency on the router package.
type SessionIterator interface {
	RangeActive(fn func(sessionID string, lastActive time.Time) bool)
}

// SessionPoker delivers one poke prompt to a single session.
type SessionPoker interface {
	Poke(ctx context.Context, sessionID, prompt string) error
}

// Config holds heartbeat configuration.
type Config struct {
	Interval   time.Duration  // default 30m
	Prompt     string         // default DefaultPrompt
	QuietHours *QuietHours    // nil = no quiet hours
	Timezone   *time.Location // nil = UTC
	MaxIdleAge time.Duration  // skip sessions idle longer than this
	Logger     *slog.Logger
	Now        func() time.Time // injectable for testing
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
	if c.MaxIdleAge <= 0 {
		c.MaxIdleAge = 2 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Status is a point-in-time snapshot of the heartbeat's counters.
type Status struct {
	Running   bool      `json:"running"`
	LastTick  time.Time `json:"last_tick,omitzero"`
	LastPokes int       `json:"last_pokes"`
	Ticks     uint64    `json:"ticks"`
	Pokes     uint64    `json:"pokes"`
	Errors    uint64    `json:"errors"`
}

// Heartbeat runs a dedicated goroutine that periodically pokes active
// sessions. Poke failures are logged and counted, never fatal: one
// broken session must not stall the sweep.
type Heartbeat struct {
	cfg      Config
	iterator SessionIterator
	poker    SessionPoker

	mu     sync.Mutex
	cancel context.CancelFunc

	// tickMu serializes ticks so a webhook trigger cannot overlap the
	// timer loop.
	tickMu sync.Mutex

	statMu    sync.Mutex
	lastTick  time.Time
	lastPokes int
	ticks     uint64
	pokes     uint64
	errors    uint64
}

// New creates a Heartbeat with the given configuration.
func New(cfg Config, iterator SessionIterator, poker SessionPoker) (*Heartbeat, error) {
	if iterator == nil {
		return nil, errors.New("heartbeat: nil SessionIterator")
	}
	if poker == nil {
		return nil, errors.New("heartbeat: nil SessionPoker")
	}

	return &Heartbeat{
		cfg:      cfg.withDefaults(),
		iterator: iterator,
		poker:    poker,
	}, nil
}

// Start begins the ticker loop. Returns ErrAlreadyStarted if called twice.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, h.cancel = context.WithCancel(ctx)
	go h.run(ctx)

	h.cfg.Logger.Info("heartbeat: started",
		"interval", h.cfg.Interval,
		"max_idle_age", h.cfg.MaxIdleAge,
		"quiet_hours", h.cfg.QuietHours != nil,
	)
	return nil
}

// Stop gracefully stops the loop. Returns ErrNotStarted if not running.
func (h *Heartbeat) Stop(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel == nil {
		return ErrNotStarted
	}

	h.cancel()
	h.cancel = nil
	h.cfg.Logger.Info("heartbeat: stopped")
	return nil
}

// Running reports whether the ticker loop is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// TickNow forces a sweep outside the regular interval. The webhook
// trigger uses it. Returns ErrNotStarted when the loop is not running.
func (h *Heartbeat) TickNow(ctx context.Context) error {
	if !h.Running() {
		return ErrNotStarted
	}
	h.tick(ctx)
	return nil
}

// Status returns a snapshot of the heartbeat's counters.
func (h *Heartbeat) Status() Status {
	running := h.Running()

	h.statMu.Lock()
	defer h.statMu.Unlock()
	return Status{
		Running:   running,
		LastTick:  h.lastTick,
		LastPokes: h.lastPokes,
		Ticks:     h.ticks,
		Pokes:     h.pokes,
		Errors:    h.errors,
	}
}

// run is the main ticker loop.
func (h *Heartbeat) run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick sweeps the sessions and pokes eligible ones. Only one tick runs
// at a time.
func (h *Heartbeat) tick(ctx context.Context) {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()

	now := h.cfg.Now().In(h.cfg.Timezone)
	metrics.HeartbeatTicksTotal.Inc()

	h.statMu.Lock()
	h.ticks++
	h.lastTick = now
	h.statMu.Unlock()

	if h.cfg.QuietHours != nil && h.cfg.QuietHours.IsQuiet(now) {
		h.cfg.Logger.Debug("heartbeat: tick skipped, quiet hours")
		h.setLastPokes(0)
		return
	}

	var poked int
	h.iterator.RangeActive(func(sessionID string, lastActive time.Time) bool {
		// Check context between iterations.
		if ctx.Err() != nil {
			return false
		}

		// Skip sessions idle longer than MaxIdleAge.
		if now.Sub(lastActive.In(h.cfg.Timezone)) > h.cfg.MaxIdleAge {
			return true
		}

		if err := h.poker.Poke(ctx, sessionID, h.cfg.Prompt); err != nil {
			metrics.HeartbeatPokesTotal.WithLabelValues(metrics.OutcomeError).Inc()
			h.statMu.Lock()
			h.errors++
			h.statMu.Unlock()
			h.cfg.Logger.Warn("heartbeat: poke failed",
				"session_id", sessionID,
				"error", err,
			)
			return true
		}

		metrics.HeartbeatPokesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		poked++
		h.statMu.Lock()
		h.pokes++
		h.statMu.Unlock()
		return true
	})

	h.setLastPokes(poked)
	if poked > 0 {
		h.cfg.Logger.Info("heartbeat: tick complete", "poked", poked)
	}
}

func (h *Heartbeat) setLastPokes(n int) {
	h.statMu.Lock()
	h.lastPokes = n
	h.statMu.Unlock()
}
