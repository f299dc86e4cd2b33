package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heraldbot/herald/internal/provider"
	"github.com/heraldbot/herald/internal/tool"
)

// ToolExecutor runs tool calls in parallel with panic recovery.
type ToolExecutor struct {
	registry *tool.Registry
	timeout  time.Duration
}

// NewToolExecutor creates an executor over the given registry.
// timeout bounds each individual call; zero means no per-call bound.
func NewToolExecutor(registry *tool.Registry, timeout time.Duration) *ToolExecutor {
	return &ToolExecutor{
		registry: registry,
		timeout:  timeout,
	}
}

// Execute runs all tool calls in parallel and returns results in input
// order. Panics in individual tools are recovered and reported as error
// outputs so one bad tool cannot take down the loop.
func (e *ToolExecutor) Execute(ctx context.Context, calls []provider.ToolCall) []ToolCallRecord {
	results := make([]ToolCallRecord, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc provider.ToolCall) {
			defer wg.Done()
			results[idx] = e.executeSingle(ctx, tc)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (e *ToolExecutor) executeSingle(ctx context.Context, tc provider.ToolCall) (record ToolCallRecord) {
	record.ID = tc.ID
	record.Name = tc.Name
	record.Arguments = tc.Arguments

	start := time.Now()

	defer func() {
		record.Duration = time.Since(start)
		if r := recover(); r != nil {
			record.Panicked = true
			record.Output = tool.ErrorOutput(fmt.Sprintf("panic: %v", r))
		}
	}()

	out, err := e.registry.Execute(ctx, tc.Name, tc.Arguments, e.timeout)
	if err != nil {
		record.Output = tool.ErrorOutput(err.Error())
		return record
	}

	record.Output = out
	return record
}
