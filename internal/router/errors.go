// Package router dispatches inbound messages to agent sessions,
// managing session lifecycle, per-session serialization, and reply
// delivery.
package router

import "errors"

// Sentinel errors for router operations.
var (
	// ErrInboxFull indicates the router's inbox is at capacity and the
	// incoming message was dropped. Callers should back off or alert
	// the operator.
	ErrInboxFull = errors.New("router: inbox full, message dropped")

	// ErrRouterStopped indicates the router has been shut down and no
	// longer accepts messages.
	ErrRouterStopped = errors.New("router: stopped")

	// ErrNoAgentFactory indicates no agent factory has been configured.
	ErrNoAgentFactory = errors.New("router: no agent factory configured")

	// ErrNoResponseSender indicates no response sender has been
	// configured.
	ErrNoResponseSender = errors.New("router: no response sender configured")

	// ErrUnknownSession indicates a poke referenced a session that no
	// longer exists, usually because it was pruned.
	ErrUnknownSession = errors.New("router: unknown session")
)
