package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/heraldbot/herald/internal/provider"
)

const (
	// maxToolBuffers bounds in-flight tool_use accumulation so a
	// misbehaving stream cannot grow memory without limit.
	maxToolBuffers = 100

	// streamBufferSize matches the consumption buffer of the agent
	// loop so neither side stalls the other under normal load.
	streamBufferSize = 16
)

// Stream implements provider.Provider. The first event is pulled
// before the goroutine starts so connection and auth errors surface
// synchronously and the chain can fail over to the next provider.
func (a *Anthropic) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	params := convertRequest(req, &a.config, a.logger)
	stream := a.client.Messages.NewStreaming(ctx, params)

	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close()
		if err == nil {
			err = errors.New("anthropic: stream ended before any event")
		}
		return nil, mapError(err)
	}

	ch := make(chan provider.StreamChunk, streamBufferSize)

	go func() {
		defer close(ch)
		defer stream.Close()

		state := &streamState{toolBuffers: make(map[int64]*toolBuffer)}

		if !a.handleEvent(ctx, ch, state, stream.Current()) {
			return
		}
		for stream.Next() {
			if !a.handleEvent(ctx, ch, state, stream.Current()) {
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			emit(ctx, ch, provider.StreamChunk{Err: mapError(err)})
		}
	}()

	return ch, nil
}

// streamState carries what later events need from earlier ones: the
// prompt token count arrives in message_start while the final usage
// delta only reports output tokens, and tool arguments stream as JSON
// fragments keyed by block index.
type streamState struct {
	inputTokens int64
	toolBuffers map[int64]*toolBuffer
}

type toolBuffer struct {
	id   string
	name string
	args strings.Builder
}

// handleEvent processes one stream event. It returns false when the
// consumer is gone and the stream should stop.
func (a *Anthropic) handleEvent(ctx context.Context, ch chan<- provider.StreamChunk, state *streamState, event sdkanthropic.MessageStreamEventUnion) bool {
	switch ev := event.AsAny().(type) {
	case sdkanthropic.MessageStartEvent:
		state.inputTokens = ev.Message.Usage.InputTokens

	case sdkanthropic.ContentBlockStartEvent:
		if block, ok := ev.ContentBlock.AsAny().(sdkanthropic.ToolUseBlock); ok {
			if len(state.toolBuffers) >= maxToolBuffers {
				a.logger.Warn("tool buffer limit reached, dropping tool_use block",
					"index", ev.Index, "tool", block.Name)
				return true
			}
			state.toolBuffers[ev.Index] = &toolBuffer{id: block.ID, name: block.Name}
		}

	case sdkanthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdkanthropic.TextDelta:
			return emit(ctx, ch, provider.StreamChunk{Content: delta.Text})
		case sdkanthropic.InputJSONDelta:
			if buf, ok := state.toolBuffers[ev.Index]; ok {
				buf.args.WriteString(delta.PartialJSON)
			}
		}

	case sdkanthropic.ContentBlockStopEvent:
		if buf, ok := state.toolBuffers[ev.Index]; ok {
			delete(state.toolBuffers, ev.Index)
			args := buf.args.String()
			if args == "" {
				args = "{}"
			}
			return emit(ctx, ch, provider.StreamChunk{
				ToolCalls: []provider.ToolCall{{
					ID:        buf.id,
					Name:      buf.name,
					Arguments: json.RawMessage(args),
				}},
			})
		}

	case sdkanthropic.MessageDeltaEvent:
		return emit(ctx, ch, provider.StreamChunk{
			FinishReason: convertStopReason(sdkanthropic.StopReason(ev.Delta.StopReason)),
			Usage: &provider.TokenUsage{
				PromptTokens:     int(state.inputTokens),
				CompletionTokens: int(ev.Usage.OutputTokens),
				TotalTokens:      int(state.inputTokens + ev.Usage.OutputTokens),
			},
		})
	}

	return true
}

func emit(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
