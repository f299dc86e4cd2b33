package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/heraldbot/herald/internal/provider"
)

// summarizeSystemPrompt instructs the summarizing model. The output
// feeds straight back into future system prompts, so it asks for plain
// prose.
const summarizeSystemPrompt = "You summarize conversations between a user and an assistant. " +
	"Write a compact plain-text summary that preserves names, decisions, open tasks, and stated preferences. " +
	"Reply with the summary only."

// summarizeMaxTokens bounds the summary length.
const summarizeMaxTokens = 512

// Summarizer condenses conversation history through a completer,
// typically the chain's utility role.
type Summarizer struct {
	completer Completer
}

// NewSummarizer creates a Summarizer backed by the given completer.
func NewSummarizer(c Completer) *Summarizer {
	return &Summarizer{completer: c}
}

// Summarize folds the prior summary and the given messages into a new
// summary.
func (s *Summarizer) Summarize(ctx context.Context, prior string, messages []provider.LLMMessage) (string, error) {
	var b strings.Builder
	if prior != "" {
		b.WriteString("Summary so far:\n")
		b.WriteString(prior)
		b.WriteString("\n\nNew messages:\n")
	}
	writeTranscript(&b, messages)

	resp, err := s.completer.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: summarizeSystemPrompt},
			{Role: provider.MessageRoleUser, Content: b.String()},
		},
		MaxTokens: summarizeMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("agent: summarize: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// writeTranscript renders user and assistant turns as "role: text"
// lines. Tool frames are skipped.
func writeTranscript(b *strings.Builder, messages []provider.LLMMessage) {
	for _, m := range messages {
		switch m.Role {
		case provider.MessageRoleUser, provider.MessageRoleAssistant:
			if m.Content == "" {
				continue
			}
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
}
