package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/heraldbot/herald/internal/agent"
	"github.com/heraldbot/herald/internal/channel"
	"github.com/heraldbot/herald/internal/memory"
	"github.com/heraldbot/herald/internal/metrics"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/pkg/message"
)

// defaultMaxHistoryLen caps the LLM messages kept in a session's
// in-memory window. Oldest entries are trimmed past it.
const defaultMaxHistoryLen = 100

// defaultTypingInterval refreshes the typing indicator often enough
// that Telegram's ~5s status never lapses mid-reply.
const defaultTypingInterval = 4 * time.Second

// PipelineConfig groups the dependencies of the message pipeline.
type PipelineConfig struct {
	Store          SessionStore
	LaneLock       *LaneLock
	GroupPolicy    GroupPolicy
	AgentFactory   AgentFactory
	ResponseSender ResponseSender
	Pruner         *lazyPruner
	Logger         *slog.Logger

	// ChannelLookup resolves channels by name for typing indicators
	// and streaming replies. Nil disables both.
	ChannelLookup ChannelLookup

	// History, when non-nil, restores session history on first contact
	// and persists each turn write-behind. Persistence failures are
	// logged, never fatal.
	History memory.HistoryStore

	// Compactor, when non-nil, folds old history into a rolling summary
	// once a session reaches the compaction threshold, instead of the
	// window cap silently dropping it.
	Compactor *Compactor

	// SystemPrompt is prepended to every agent request.
	SystemPrompt string

	// PokeAck is the token a model replies with when a heartbeat poke
	// needs no user-visible message. Replies equal to it are dropped.
	PokeAck string

	// Tools supplies the tool definitions offered to the model.
	// Nil means no tools.
	Tools func() []provider.ToolDefinition

	// MaxHistoryLen caps the in-memory history window. Zero uses the
	// default (100).
	MaxHistoryLen int

	// TypingInterval is the refresh period for typing indicators.
	// Zero uses the default.
	TypingInterval time.Duration

	// StreamReplies enables incremental delivery through channels that
	// support streaming.
	StreamReplies bool

	// Tracer wraps each turn in a span. Nil disables tracing.
	Tracer trace.Tracer
}

// PipelineResult is the outcome of processing one message.
type PipelineResult struct {
	Session  *Session
	Response *agent.Response
	Error    error
	Skipped  bool
}

// Pipeline turns one inbound message into a reply: resolve the
// session, run the agent loop under the session lane, deliver the
// response, and persist both turns.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates a pipeline with the given configuration.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MaxHistoryLen <= 0 {
		cfg.MaxHistoryLen = defaultMaxHistoryLen
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = defaultTypingInterval
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Pipeline{cfg: cfg}
}

// Execute processes a single message end to end.
func (p *Pipeline) Execute(ctx context.Context, env envelope) PipelineResult {
	logger := p.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("pipeline: message received",
		"channel", env.Key.Channel,
		"chat_id", env.Key.ChatID,
		"thread_id", env.Key.ThreadID,
	)

	ctx, span := p.cfg.Tracer.Start(ctx, "pipeline.turn", trace.WithAttributes(
		attribute.String("channel", env.Key.Channel),
		attribute.String("chat.kind", string(env.Message.Chat.Kind)),
	))
	defer span.End()

	session, created := p.cfg.Store.GetOrCreate(env.Key)
	if session == nil {
		logger.Warn("pipeline: max sessions reached, message dropped",
			"channel", env.Key.Channel,
			"chat_id", env.Key.ChatID,
		)
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeDropped).Inc()
		p.sendError(ctx, env.Message, "Too many active conversations. Please try again later.")
		return PipelineResult{Skipped: true}
	}
	if created {
		logger.Info("pipeline: new session created", "session_id", session.ID)
	}

	if !p.cfg.GroupPolicy.ShouldProcess(env.Message) {
		logger.Debug("pipeline: message filtered by group policy",
			"sender", env.Message.Sender.ID,
		)
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return PipelineResult{Session: session, Skipped: true}
	}

	// The lane serializes turns within the session; everything that
	// touches session.History happens under it.
	p.cfg.LaneLock.Acquire(env.Key)
	defer p.cfg.LaneLock.Release(env.Key)

	loop, err := p.cfg.AgentFactory.ForSession(session, env.Message)
	if err != nil {
		logger.Error("pipeline: agent initialization failed",
			"error", err, "session_id", session.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent initialization failed")
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		p.sendError(ctx, env.Message, "Failed to start a reply. Please try again.")
		return PipelineResult{Session: session, Error: err}
	}

	// First contact on a restored key: pull the persisted window and
	// any rolling summary from earlier compactions.
	if created && p.cfg.History != nil {
		pkey := env.Key.String()
		restored, err := p.cfg.History.Recent(ctx, pkey, p.cfg.MaxHistoryLen)
		if err != nil {
			logger.Warn("pipeline: history restore failed",
				"session_id", session.ID, "error", err)
		} else if len(restored) > 0 {
			session.History = restored
			logger.Info("pipeline: history restored",
				"session_id", session.ID, "messages", len(restored))
		}
		summary, err := p.cfg.History.Summary(ctx, pkey)
		if err != nil {
			logger.Warn("pipeline: summary restore failed",
				"session_id", session.ID, "error", err)
		} else if summary != "" {
			session.Summary = summary
		}
	}

	userMsg := messageToLLM(env.Message)
	session.History = append(session.History, userMsg)
	p.trimHistory(session)
	p.persist(ctx, logger, session, env.Key, userMsg)

	req := agent.Request{
		Messages:     session.History,
		SystemPrompt: p.cfg.SystemPrompt,
	}
	if session.Summary != "" {
		req.SystemPrompt = withSummary(p.cfg.SystemPrompt, session.Summary)
	}
	if p.cfg.Tools != nil {
		req.Tools = p.cfg.Tools()
	}

	ch, haveChannel := p.lookupChannel(env.Key.Channel)

	var cancelTyping context.CancelFunc
	if haveChannel {
		if tc, ok := ch.(channel.TypingChannel); ok {
			typingCtx, cancel := context.WithCancel(ctx)
			cancelTyping = cancel
			channel.StartTypingLoop(typingCtx, tc, env.Message.Chat, p.cfg.TypingInterval)
		}
	}

	resp, streamed, err := p.runLoop(ctx, loop, req, ch, haveChannel, env.Message.Chat)

	// A context-length rejection gets one retry on a hard-trimmed
	// window.
	if err != nil && errors.Is(err, provider.ErrContextLength) && p.cfg.Compactor != nil {
		logger.Warn("pipeline: context length exceeded, trimming session",
			"session_id", session.ID, "messages", len(session.History))
		session.History = p.cfg.Compactor.EmergencyTrim(session.History)
		req.Messages = session.History
		resp, streamed, err = p.runLoop(ctx, loop, req, ch, haveChannel, env.Message.Chat)
	}

	if cancelTyping != nil {
		cancelTyping()
	}

	span.SetAttributes(
		attribute.Int("iterations", resp.Iterations),
		attribute.String("stop_reason", string(resp.StopReason)),
	)

	if err != nil {
		logger.Error("pipeline: agent loop failed",
			"error", err, "session_id", session.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent loop failed")
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		p.sendError(ctx, env.Message, "Something went wrong while composing a reply.")
		return PipelineResult{Session: session, Error: err}
	}

	// A streamed reply has already reached the user chunk by chunk.
	if !streamed {
		outbound := buildOutbound(env.Message, resp)
		if err := p.cfg.ResponseSender.Send(ctx, outbound); err != nil {
			logger.Error("pipeline: reply delivery failed",
				"error", err, "session_id", session.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "reply delivery failed")
			metrics.RepliesTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return PipelineResult{Session: session, Response: &resp, Error: err}
		}
	}
	metrics.RepliesTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	assistantMsg := provider.LLMMessage{
		Role:    provider.MessageRoleAssistant,
		Content: resp.Content,
	}
	session.History = append(session.History, assistantMsg)
	p.compact(ctx, logger, session, env.Key)
	p.trimHistory(session)
	p.cfg.Store.Touch(env.Key)
	p.persist(ctx, logger, session, env.Key, assistantMsg)

	if p.cfg.Pruner != nil {
		if pruned := p.cfg.Pruner.TryPrune(); pruned > 0 {
			logger.Info("pipeline: pruned stale sessions", "count", pruned)
		}
	}

	return PipelineResult{Session: session, Response: &resp}
}

// runLoop runs the agent, streaming through the channel when both
// sides support it. The bool reports whether the reply was streamed.
func (p *Pipeline) runLoop(ctx context.Context, loop *agent.Loop, req agent.Request, ch channel.Channel, haveChannel bool, chat message.Chat) (agent.Response, bool, error) {
	if p.cfg.StreamReplies && haveChannel {
		if sc, ok := ch.(channel.StreamingChannel); ok && sc.SupportsStreaming() {
			resp, err := p.runStreaming(ctx, loop, req, sc, chat)
			return resp, err == nil, err
		}
	}
	resp, err := loop.Run(ctx, req)
	return resp, false, err
}

// runStreaming pipes the loop's text events into the channel's stream
// while tool events pass silently, and returns the aggregated response
// from the done event.
func (p *Pipeline) runStreaming(ctx context.Context, loop *agent.Loop, req agent.Request, sc channel.StreamingChannel, chat message.Chat) (agent.Response, error) {
	events, err := loop.RunStream(ctx, req)
	if err != nil {
		return agent.Response{}, err
	}

	textCh := make(chan string, 16)
	sendDone := make(chan error, 1)
	go func() {
		sendDone <- sc.SendStream(ctx, chat, textCh)
	}()

	var final *agent.Response
	var runErr error
	for ev := range events {
		switch ev.Type {
		case agent.StreamEventText:
			textCh <- ev.Content
		case agent.StreamEventDone:
			final = ev.Final
		case agent.StreamEventError:
			runErr = ev.Err
		}
	}
	close(textCh)

	if err := <-sendDone; err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return agent.Response{}, runErr
	}
	if final == nil {
		return agent.Response{}, errors.New("router: stream ended without a final response")
	}
	return *final, nil
}

func (p *Pipeline) lookupChannel(name string) (channel.Channel, bool) {
	if p.cfg.ChannelLookup == nil {
		return nil, false
	}
	return p.cfg.ChannelLookup.Get(name)
}

func (p *Pipeline) trimHistory(session *Session) {
	if limit := p.cfg.MaxHistoryLen; len(session.History) > limit {
		session.History = session.History[len(session.History)-limit:]
	}
}

// compact folds old history into the rolling summary once the session
// reaches the compaction threshold. Failures leave the session as it
// was; the window cap still bounds growth.
func (p *Pipeline) compact(ctx context.Context, logger *slog.Logger, session *Session, key SessionKey) {
	c := p.cfg.Compactor
	if c == nil || !c.ShouldCompact(session.History) {
		return
	}

	summary, tail, err := c.Compact(ctx, session.Summary, session.History)
	if err != nil {
		logger.Warn("pipeline: compaction failed",
			"session_id", session.ID, "error", err)
		return
	}

	dropped := len(session.History) - len(tail)
	changed := summary != "" && summary != session.Summary
	session.History = tail
	session.Summary = summary

	if changed && p.cfg.History != nil {
		if err := p.cfg.History.SetSummary(ctx, key.String(), summary); err != nil {
			logger.Warn("pipeline: summary persist failed",
				"session_id", session.ID, "error", err)
		}
	}
	logger.Info("pipeline: history compacted",
		"session_id", session.ID, "dropped", dropped, "retained", len(tail))
}

// persist writes one turn to the history store, logging failures
// instead of surfacing them.
func (p *Pipeline) persist(ctx context.Context, logger *slog.Logger, session *Session, key SessionKey, msg provider.LLMMessage) {
	if p.cfg.History == nil {
		return
	}
	if err := p.cfg.History.Append(ctx, key.String(), msg); err != nil {
		logger.Warn("pipeline: history persist failed",
			"session_id", session.ID, "error", err)
	}
}

// sendError delivers a short apology to the user. Failures only log.
func (p *Pipeline) sendError(ctx context.Context, original message.InboundMessage, text string) {
	if err := p.cfg.ResponseSender.Send(ctx, message.Reply(original, text)); err != nil {
		if p.cfg.Logger != nil {
			p.cfg.Logger.Error("pipeline: failed to send error message", "error", err)
		}
	}
}
