package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/heraldbot/herald/internal/provider"
)

// streamBufferSize matches the consumption buffer of the agent loop.
const streamBufferSize = 16

// oaiStreamChunk represents a single SSE chunk from the OpenAI streaming API.
type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
	Usage   *oaiUsage         `json:"usage,omitempty"`
}

type oaiStreamChoice struct {
	Delta        oaiStreamDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type oaiStreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []oaiStreamTool `json:"tool_calls,omitempty"`
}

type oaiStreamTool struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function oaiToolFunction `json:"function"`
}

// toolAccumulator collects streaming tool call deltas by index.
type toolAccumulator struct {
	calls map[int]*provider.ToolCall
}

func newToolAccumulator() *toolAccumulator {
	return &toolAccumulator{calls: make(map[int]*provider.ToolCall)}
}

// add merges a streaming tool call delta into the accumulator.
func (ta *toolAccumulator) add(st oaiStreamTool) {
	tc, ok := ta.calls[st.Index]
	if !ok {
		tc = &provider.ToolCall{}
		ta.calls[st.Index] = tc
	}
	if st.ID != "" {
		tc.ID = st.ID
	}
	if st.Function.Name != "" {
		tc.Name = st.Function.Name
	}
	if st.Function.Arguments != "" {
		tc.Arguments = json.RawMessage(
			string(tc.Arguments) + st.Function.Arguments,
		)
	}
}

// result returns the accumulated tool calls in index order.
func (ta *toolAccumulator) result() []provider.ToolCall {
	if len(ta.calls) == 0 {
		return nil
	}
	maxIdx := 0
	for idx := range ta.calls {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	result := make([]provider.ToolCall, 0, len(ta.calls))
	for i := 0; i <= maxIdx; i++ {
		if tc, ok := ta.calls[i]; ok {
			result = append(result, *tc)
		}
	}
	return result
}

// readSSE reads an SSE response and emits StreamChunks until [DONE],
// a parse error, or a dropped connection. Every send is guarded by the
// context so an abandoned consumer never strands this goroutine.
func (p *Provider) readSSE(ctx context.Context, scanner *bufio.Scanner, ch chan<- provider.StreamChunk) {
	send := func(sc provider.StreamChunk) bool {
		select {
		case ch <- sc:
			return true
		case <-ctx.Done():
			return false
		}
	}

	tools := newToolAccumulator()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			send(provider.StreamChunk{Err: err})
			return
		}

		line := scanner.Text()

		// SSE format: accept both "data: " (with space) and "data:"
		// (without). Some compatible providers omit the space.
		var data string
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		default:
			continue
		}

		if data == "[DONE]" {
			if tcs := tools.result(); len(tcs) > 0 {
				send(provider.StreamChunk{ToolCalls: tcs})
			}
			return
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			send(provider.StreamChunk{Err: fmt.Errorf("parse SSE chunk: %w", err)})
			return
		}

		sc := provider.StreamChunk{}

		if chunk.Usage != nil {
			sc.Usage = &provider.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}

		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				sc.Content = choice.Delta.Content
			}

			for _, tc := range choice.Delta.ToolCalls {
				tools.add(tc)
			}

			if choice.FinishReason != nil {
				sc.FinishReason = mapFinishReason(*choice.FinishReason)
			}
		}

		// Only emit when there is something to deliver.
		if sc.Content != "" || sc.FinishReason != "" || sc.Usage != nil {
			if !send(sc) {
				return
			}
		}
	}

	// Scanner stopped: connection drop or cancellation.
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			send(provider.StreamChunk{Err: ctx.Err()})
			return
		}
		send(provider.StreamChunk{
			Err: fmt.Errorf("%w: stream read error: %w", provider.ErrProviderDown, err),
		})
	}
}
