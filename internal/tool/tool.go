// Package tool defines the tool interface and registry. Tools give the
// model capabilities beyond text; concrete tools come from tool modules
// (MCP servers, built-ins) and are invoked through the agent loop.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a single capability the model may invoke.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the result of a tool execution. A tool that ran but failed
// reports IsError with the failure text in Content, so the model sees
// the error and can react; an error return means the execution itself
// broke down.
type Output struct {
	Content string
	IsError bool
}

// ErrorOutput builds an Output carrying an error message back to the model.
func ErrorOutput(msg string) Output {
	return Output{Content: msg, IsError: true}
}
