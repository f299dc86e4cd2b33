package router

import (
	"context"
	"fmt"

	"github.com/heraldbot/herald/internal/provider"
)

// emergencyRetain is the tail kept when a provider rejects a request
// for context length.
const emergencyRetain = 5

// Summarizer condenses a conversation segment into a short rolling
// summary. prior carries the previous summary so the new one folds it
// in instead of losing it.
type Summarizer interface {
	Summarize(ctx context.Context, prior string, messages []provider.LLMMessage) (string, error)
}

// CompactionConfig tunes history compaction.
type CompactionConfig struct {
	// Threshold triggers compaction once a session's history reaches
	// this many messages. Zero uses the history window default.
	Threshold int

	// Retain is how many recent messages survive a compaction. Zero
	// uses half the threshold.
	Retain int
}

func (c CompactionConfig) withDefaults() CompactionConfig {
	if c.Threshold <= 0 {
		c.Threshold = defaultMaxHistoryLen
	}
	if c.Retain <= 0 || c.Retain >= c.Threshold {
		c.Retain = c.Threshold / 2
	}
	return c
}

// Compactor folds the old end of a session's history into a rolling
// summary, keeping the recent tail verbatim. Without a summarizer the
// old messages are dropped and the prior summary carries forward.
type Compactor struct {
	summarizer Summarizer
	cfg        CompactionConfig
}

// NewCompactor creates a Compactor. A nil summarizer still compacts by
// dropping old messages.
func NewCompactor(summarizer Summarizer, cfg CompactionConfig) *Compactor {
	return &Compactor{summarizer: summarizer, cfg: cfg.withDefaults()}
}

// ShouldCompact reports whether the history has reached the threshold.
func (c *Compactor) ShouldCompact(history []provider.LLMMessage) bool {
	return len(history) >= c.cfg.Threshold
}

// Compact summarizes everything but the retained tail and returns the
// new summary plus the tail. The tail is a copy.
func (c *Compactor) Compact(ctx context.Context, prior string, history []provider.LLMMessage) (string, []provider.LLMMessage, error) {
	retain := c.cfg.Retain
	if len(history) <= retain {
		return prior, copyMessages(history), nil
	}

	old := history[:len(history)-retain]
	tail := copyMessages(history[len(history)-retain:])

	if c.summarizer == nil {
		return prior, tail, nil
	}
	summary, err := c.summarizer.Summarize(ctx, prior, old)
	if err != nil {
		return "", nil, fmt.Errorf("router: compaction: %w", err)
	}
	if summary == "" {
		summary = prior
	}
	return summary, tail, nil
}

// EmergencyTrim cuts the history to a minimal tail. No summary is
// attempted: a provider that rejected the request for length cannot
// summarize it either.
func (c *Compactor) EmergencyTrim(history []provider.LLMMessage) []provider.LLMMessage {
	if len(history) <= emergencyRetain {
		return history
	}
	return copyMessages(history[len(history)-emergencyRetain:])
}

// withSummary appends the rolling summary to the base system prompt.
func withSummary(base, summary string) string {
	section := "Summary of the conversation so far:\n" + summary
	if base == "" {
		return section
	}
	return base + "\n\n" + section
}

func copyMessages(msgs []provider.LLMMessage) []provider.LLMMessage {
	out := make([]provider.LLMMessage, len(msgs))
	copy(out, msgs)
	return out
}
