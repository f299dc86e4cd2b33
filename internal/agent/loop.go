package agent

import (
	"context"
	"errors"

	"github.com/heraldbot/herald/internal/provider"
)

// Sentinel errors for loop termination.
var (
	ErrTokenBudgetExceeded  = errors.New("agent: token budget exceeded")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
)

// Completer is the narrow model surface the loop needs. A single
// provider satisfies it directly; RoleCompleter binds a failover chain
// to one role.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
}

// RoleCompleter adapts a provider.Chain to the Completer interface by
// fixing the role every request is routed with.
type RoleCompleter struct {
	Chain *provider.Chain
	Role  provider.Role
}

// Complete routes through the chain with the bound role.
func (rc RoleCompleter) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	return rc.Chain.Complete(ctx, rc.Role, req)
}

// Stream routes through the chain with the bound role.
func (rc RoleCompleter) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return rc.Chain.Stream(ctx, rc.Role, req)
}

// Loop implements the reason-act cycle: call the model, run any tools
// it requested, feed results back, repeat until it answers in plain
// text or a guard fires.
type Loop struct {
	completer Completer
	executor  *ToolExecutor
	config    LoopConfig
}

// NewLoop creates a Loop with the given completer, executor, and config.
func NewLoop(c Completer, executor *ToolExecutor, cfg LoopConfig) *Loop {
	return &Loop{
		completer: c,
		executor:  executor,
		config:    cfg.withDefaults(),
	}
}

// buildInitialMessages assembles the starting history from the request.
func buildInitialMessages(req Request) []provider.LLMMessage {
	var messages []provider.LLMMessage
	if req.SystemPrompt != "" {
		messages = append(messages, provider.LLMMessage{
			Role:    provider.MessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	return append(messages, req.Messages...)
}

// appendToolResults adds tool execution results to the history.
func appendToolResults(messages []provider.LLMMessage, records []ToolCallRecord) []provider.LLMMessage {
	for _, rec := range records {
		messages = append(messages, provider.LLMMessage{
			Role:    provider.MessageRoleTool,
			Content: rec.Output.Content,
			ToolID:  rec.ID,
			IsError: rec.Output.IsError,
		})
	}
	return messages
}

// Run executes the loop synchronously and returns the final response.
//
// The configured Timeout is applied via context.WithTimeout; a shorter
// caller deadline takes precedence.
func (l *Loop) Run(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	detector := newLoopDetector(l.config.LoopThreshold)
	tracker := newTokenTracker(l.config.TokenBudget)
	messages := buildInitialMessages(req)

	var allToolCalls []ToolCallRecord

	for i := 0; i < l.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			stopReason := StopReasonError
			if errors.Is(err, context.DeadlineExceeded) {
				stopReason = StopReasonTimeout
			}
			return Response{
				ToolCalls:  allToolCalls,
				TotalUsage: tracker.total(),
				Iterations: i,
				StopReason: stopReason,
			}, err
		}

		if tracker.exceeded() {
			return Response{
				ToolCalls:  allToolCalls,
				TotalUsage: tracker.total(),
				Iterations: i,
				StopReason: StopReasonTokenBudget,
			}, ErrTokenBudgetExceeded
		}

		resp, err := l.completer.Complete(ctx, provider.CompletionRequest{
			Messages: messages,
			Tools:    req.Tools,
		})
		if err != nil {
			return Response{
				ToolCalls:  allToolCalls,
				TotalUsage: tracker.total(),
				Iterations: i,
				StopReason: StopReasonError,
			}, err
		}

		tracker.add(resp.Usage)
		if tracker.exceeded() {
			return Response{
				ToolCalls:  allToolCalls,
				TotalUsage: tracker.total(),
				Iterations: i + 1,
				StopReason: StopReasonTokenBudget,
			}, ErrTokenBudgetExceeded
		}

		// No tool calls: the model is done reasoning.
		if len(resp.ToolCalls) == 0 {
			return Response{
				Content:    resp.Content,
				ToolCalls:  allToolCalls,
				TotalUsage: tracker.total(),
				Iterations: i + 1,
				StopReason: StopReasonComplete,
			}, nil
		}

		// Check for loops before appending the assistant message so the
		// history never holds an assistant turn without tool results.
		for _, tc := range resp.ToolCalls {
			if detector.record(tc.Name, tc.Arguments) {
				return Response{
					ToolCalls:  allToolCalls,
					TotalUsage: tracker.total(),
					Iterations: i + 1,
					StopReason: StopReasonLoopDetected,
				}, ErrLoopDetected
			}
		}

		messages = append(messages, provider.LLMMessage{
			Role:      provider.MessageRoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		records := l.executor.Execute(ctx, resp.ToolCalls)
		allToolCalls = append(allToolCalls, records...)

		messages = appendToolResults(messages, records)
	}

	return Response{
		ToolCalls:  allToolCalls,
		TotalUsage: tracker.total(),
		Iterations: l.config.MaxIterations,
		StopReason: StopReasonMaxIterations,
	}, ErrMaxIterationsReached
}

// RunStream executes the loop and streams events over a channel.
// The channel closes after a Done or Error event.
func (l *Loop) RunStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 16)

	go func() {
		defer close(ch)

		ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()

		detector := newLoopDetector(l.config.LoopThreshold)
		tracker := newTokenTracker(l.config.TokenBudget)
		messages := buildInitialMessages(req)

		var allToolCalls []ToolCallRecord

		for i := 0; i < l.config.MaxIterations; i++ {
			if err := ctx.Err(); err != nil {
				ch <- StreamEvent{Type: StreamEventError, Err: err}
				return
			}

			if tracker.exceeded() {
				ch <- StreamEvent{Type: StreamEventError, Err: ErrTokenBudgetExceeded}
				return
			}

			streamCh, err := l.completer.Stream(ctx, provider.CompletionRequest{
				Messages: messages,
				Tools:    req.Tools,
			})
			if err != nil {
				ch <- StreamEvent{Type: StreamEventError, Err: err}
				return
			}

			// Consume the stream, forwarding text and accumulating tool calls.
			var content string
			var toolCalls []provider.ToolCall
			var usage *provider.TokenUsage

			var streamErr error
			for chunk := range streamCh {
				if chunk.Err != nil {
					streamErr = chunk.Err
					break
				}
				if chunk.Content != "" {
					content += chunk.Content
					ch <- StreamEvent{Type: StreamEventText, Content: chunk.Content}
				}
				if len(chunk.ToolCalls) > 0 {
					toolCalls = append(toolCalls, chunk.ToolCalls...)
				}
				if chunk.Usage != nil {
					usage = chunk.Usage
				}
			}

			if streamErr != nil {
				// Drain so the provider goroutine can exit.
				for range streamCh {
				}
				ch <- StreamEvent{Type: StreamEventError, Err: streamErr}
				return
			}

			if usage != nil {
				tracker.add(*usage)
				ch <- StreamEvent{Type: StreamEventUsage, Usage: usage}
				if tracker.exceeded() {
					ch <- StreamEvent{Type: StreamEventError, Err: ErrTokenBudgetExceeded}
					return
				}
			}

			if len(toolCalls) == 0 {
				ch <- StreamEvent{Type: StreamEventDone, Final: &Response{
					Content:    content,
					ToolCalls:  allToolCalls,
					TotalUsage: tracker.total(),
					Iterations: i + 1,
					StopReason: StopReasonComplete,
				}}
				return
			}

			for _, tc := range toolCalls {
				if detector.record(tc.Name, tc.Arguments) {
					ch <- StreamEvent{Type: StreamEventError, Err: ErrLoopDetected}
					return
				}
			}

			messages = append(messages, provider.LLMMessage{
				Role:      provider.MessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})

			for _, tc := range toolCalls {
				ch <- StreamEvent{
					Type:     StreamEventToolStart,
					ToolCall: &ToolCallRecord{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments},
				}
			}

			records := l.executor.Execute(ctx, toolCalls)
			allToolCalls = append(allToolCalls, records...)

			for idx := range records {
				ch <- StreamEvent{
					Type:     StreamEventToolEnd,
					ToolCall: &records[idx],
				}
			}

			messages = appendToolResults(messages, records)
		}

		ch <- StreamEvent{Type: StreamEventError, Err: ErrMaxIterationsReached}
	}()

	return ch, nil
}
