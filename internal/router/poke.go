package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/heraldbot/herald/internal/agent"
	"github.com/heraldbot/herald/internal/metrics"
	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/pkg/message"
)

// Poke runs one unsolicited agent turn for an existing session. The
// heartbeat calls it on idle conversations: the prompt joins the
// session history for a single model run, and the reply is delivered
// only when the model surfaces something beyond the ack token. A
// suppressed turn leaves session history untouched, and a poke never
// counts as user activity for idle tracking.
func (r *Router) Poke(ctx context.Context, sessionID, prompt string) error {
	if r.stopped.Load() {
		return ErrRouterStopped
	}
	key, ok := ParseSessionKey(sessionID)
	if !ok {
		return fmt.Errorf("%w: malformed id %q", ErrUnknownSession, sessionID)
	}
	return r.pipeline.Poke(ctx, key, prompt)
}

// Poke is the pipeline half of Router.Poke. It acquires the session
// lane so a poke never interleaves with a user turn.
func (p *Pipeline) Poke(ctx context.Context, key SessionKey, prompt string) error {
	logger := p.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session := p.cfg.Store.Get(key)
	if session == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, key)
	}

	p.cfg.LaneLock.Acquire(key)
	defer p.cfg.LaneLock.Release(key)

	synthetic := pokeMessage(key, prompt)
	loop, err := p.cfg.AgentFactory.ForSession(session, synthetic)
	if err != nil {
		return fmt.Errorf("poke agent init: %w", err)
	}

	userMsg := provider.LLMMessage{
		Role:    provider.MessageRoleUser,
		Content: prompt,
	}
	// History stays unmodified until we know the reply is surfaced.
	messages := make([]provider.LLMMessage, 0, len(session.History)+1)
	messages = append(messages, session.History...)
	messages = append(messages, userMsg)

	req := agent.Request{
		Messages:     messages,
		SystemPrompt: p.cfg.SystemPrompt,
	}
	if session.Summary != "" {
		req.SystemPrompt = withSummary(p.cfg.SystemPrompt, session.Summary)
	}
	if p.cfg.Tools != nil {
		req.Tools = p.cfg.Tools()
	}

	resp, err := loop.Run(ctx, req)
	if err != nil {
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("poke agent run: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" || content == p.cfg.PokeAck {
		logger.Debug("pipeline: poke acked, nothing to deliver",
			"session_id", session.ID)
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return nil
	}

	if err := p.cfg.ResponseSender.Send(ctx, buildOutbound(synthetic, resp)); err != nil {
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("poke delivery: %w", err)
	}
	metrics.RepliesTotal.WithLabelValues(metrics.OutcomeOK).Inc()

	assistantMsg := provider.LLMMessage{
		Role:    provider.MessageRoleAssistant,
		Content: resp.Content,
	}
	session.History = append(session.History, userMsg, assistantMsg)
	p.trimHistory(session)
	p.persist(ctx, logger, session, key, userMsg)
	p.persist(ctx, logger, session, key, assistantMsg)

	logger.Info("pipeline: poke delivered",
		"session_id", session.ID,
		"channel", key.Channel,
		"chat_id", key.ChatID,
	)
	return nil
}

// pokeMessage fabricates the inbound frame a poke reply is addressed
// from. The sender is the bot itself so nothing downstream mistakes it
// for user input.
func pokeMessage(key SessionKey, prompt string) message.InboundMessage {
	return message.InboundMessage{
		Timestamp: time.Now(),
		Channel:   key.Channel,
		Chat:      message.Chat{ID: key.ChatID, Kind: message.KindDM},
		ThreadID:  key.ThreadID,
		Sender:    message.Sender{ID: "herald", IsBot: true},
		Blocks:    []message.Block{message.TextBlock(prompt)},
	}
}
