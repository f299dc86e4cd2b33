package provider

import "context"

// Provider is the interface for talking to a language model backend.
// Concrete implementations live under modules/provider and also
// implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered via StreamChunk.Err.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ContextWindowSize returns the maximum context window in tokens.
	ContextWindowSize() int

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface for active health probing.
// While a provider sits in cooldown, the health tracker calls
// HealthCheck periodically to decide whether it has recovered.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ChainMember is implemented by provider modules that join the shared
// failover chain. The app collects entries from loaded modules in load
// order; entry roles and FallbackFor links decide precedence, and ties
// within a role follow module ID order.
type ChainMember interface {
	Provider
	ChainEntry() ChainEntry
}
