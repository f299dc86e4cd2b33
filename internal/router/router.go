package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/heraldbot/herald/internal/memory"
	"github.com/heraldbot/herald/internal/metrics"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/internal/security"
	"github.com/heraldbot/herald/pkg/message"
)

const (
	defaultInboxSize = 256
	defaultMaxIdle   = 30 * time.Minute
)

// Config holds the configuration for a Router.
type Config struct {
	WorkerCount    int
	InboxSize      int
	MaxIdle        time.Duration
	MaxSessions    int
	GroupPolicy    GroupPolicy
	AgentFactory   AgentFactory
	ResponseSender ResponseSender
	Logger         *slog.Logger

	// ChannelLookup resolves channels for typing indicators and
	// streaming replies. Nil disables both.
	ChannelLookup ChannelLookup

	// History, when non-nil, backs session history persistence.
	History memory.HistoryStore

	// Compactor, when non-nil, folds old history into rolling summaries
	// instead of dropping it at the window cap.
	Compactor *Compactor

	// SystemPrompt is prepended to every agent request.
	SystemPrompt string

	// PokeAck is the token that suppresses a heartbeat poke's reply.
	PokeAck string

	// Tools supplies the tool definitions offered to the model.
	Tools func() []provider.ToolDefinition

	// RateLimiter, when non-nil, throttles inbound messages.
	RateLimiter *security.RateLimiter

	// MaxMessageBytes bounds the raw payload size accepted at the
	// boundary. Zero uses the security package default.
	MaxMessageBytes int

	// MaxHistoryLen caps the in-memory history window per session.
	MaxHistoryLen int

	// StreamReplies enables incremental delivery through streaming
	// channels.
	StreamReplies bool

	// TypingInterval is the refresh period for typing indicators.
	TypingInterval time.Duration

	// Tracer wraps each turn in a span. Nil disables tracing.
	Tracer trace.Tracer
}

// withDefaults returns a copy with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = defaultMaxIdle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Router is the central dispatch layer. It maintains sessions, pushes
// inbound messages through the pipeline to the agent loop, and sends
// replies back through the channels.
type Router struct {
	config   Config
	inbox    chan envelope
	inboxMu  sync.RWMutex
	store    SessionStore
	laneLock *LaneLock
	pool     *WorkerPool
	pipeline *Pipeline
	pruner   *lazyPruner
	cancel   context.CancelFunc
	stopOnce sync.Once
	logger   *slog.Logger
	stopped  atomic.Bool
}

// NewRouter creates a Router with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()

	if cfg.AgentFactory == nil {
		return nil, ErrNoAgentFactory
	}
	if cfg.ResponseSender == nil {
		return nil, ErrNoResponseSender
	}

	store := NewInMemorySessionStore()
	store.SetMaxSessions(cfg.MaxSessions)
	laneLock := NewLaneLock()
	pruner := newLazyPruner(store, laneLock, cfg.MaxIdle)

	pipeline := NewPipeline(PipelineConfig{
		Store:          store,
		LaneLock:       laneLock,
		GroupPolicy:    cfg.GroupPolicy,
		AgentFactory:   cfg.AgentFactory,
		ResponseSender: cfg.ResponseSender,
		Pruner:         pruner,
		Logger:         cfg.Logger,
		ChannelLookup:  cfg.ChannelLookup,
		History:        cfg.History,
		Compactor:      cfg.Compactor,
		SystemPrompt:   cfg.SystemPrompt,
		PokeAck:        cfg.PokeAck,
		Tools:          cfg.Tools,
		MaxHistoryLen:  cfg.MaxHistoryLen,
		TypingInterval: cfg.TypingInterval,
		StreamReplies:  cfg.StreamReplies,
		Tracer:         cfg.Tracer,
	})

	return &Router{
		config:   cfg,
		inbox:    make(chan envelope, cfg.InboxSize),
		store:    store,
		laneLock: laneLock,
		pool:     NewWorkerPool(cfg.WorkerCount),
		pipeline: pipeline,
		pruner:   pruner,
		logger:   cfg.Logger,
	}, nil
}

// Start launches the worker pool and begins processing messages.
func (r *Router) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.inboxMu.Lock()
	if r.stopped.Load() {
		r.inboxMu.Unlock()
		cancel()
		r.logger.Warn("router: start ignored, router already stopped")
		return
	}
	r.cancel = cancel
	r.inboxMu.Unlock()

	r.pool.Start(ctx, r.inbox, func(ctx context.Context, env envelope) {
		r.pipeline.Execute(ctx, env)
	})
	r.logger.Info("router: started",
		"workers", r.config.WorkerCount,
		"inbox_size", r.config.InboxSize,
	)
}

// Submit enqueues an inbound message for processing. Boundary guards
// run here: payload size, JSON depth, and the message rate limit.
// When the inbox is full the message is dropped with a warning.
func (r *Router) Submit(msg message.InboundMessage) error {
	r.inboxMu.RLock()
	defer r.inboxMu.RUnlock()

	if r.stopped.Load() {
		return ErrRouterStopped
	}

	if len(msg.Raw) > 0 {
		if err := security.CheckMessageSize(msg.Raw, r.config.MaxMessageBytes); err != nil {
			r.logger.Warn("router: message too large, rejected",
				"size", len(msg.Raw),
				"channel", msg.Channel,
			)
			return err
		}
		if err := security.CheckJSONDepth(msg.Raw, 0); err != nil {
			r.logger.Warn("router: message JSON too deep, rejected",
				"channel", msg.Channel,
			)
			return err
		}
	}

	if r.config.RateLimiter != nil {
		if err := r.config.RateLimiter.Allow(security.EventMessage); err != nil {
			r.logger.Warn("router: message rate limited",
				"channel", msg.Channel,
				"chat_id", msg.Chat.ID,
			)
			return err
		}
	}

	key := SessionKeyFromMessage(msg)
	env := envelope{Message: msg, Key: key}

	select {
	case r.inbox <- env:
		metrics.MessagesTotal.WithLabelValues(msg.Channel, metrics.DirectionIn).Inc()
		return nil
	default:
		r.logger.Warn("router: inbox full, message dropped",
			"channel", key.Channel,
			"chat_id", key.ChatID,
		)
		return ErrInboxFull
	}
}

// Stop shuts the router down: close the inbox, cancel in-flight work,
// and wait for the workers to drain.
func (r *Router) Stop(_ context.Context) {
	r.stopOnce.Do(func() {
		r.logger.Info("router: stopping")

		r.inboxMu.Lock()
		r.stopped.Store(true)
		close(r.inbox)
		cancel := r.cancel
		r.inboxMu.Unlock()

		// Cancel before waiting so in-flight handlers can terminate.
		if cancel != nil {
			cancel()
		}

		r.pool.Wait()
		r.logger.Info("router: stopped")
	})
}

// PruneSessions triggers a lazy session prune.
func (r *Router) PruneSessions() int {
	return r.pruner.TryPrune()
}

// Sessions returns the session store for external inspection. The
// heartbeat iterates it; the console and status endpoint report it.
func (r *Router) Sessions() SessionStore {
	return r.store
}
