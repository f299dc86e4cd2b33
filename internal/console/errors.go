package console

import "errors"

// Sentinel errors for the console package.
var (
	ErrConnectionGone = errors.New("console: no connection for chat")
	ErrNoInbox        = errors.New("console: chat unavailable, router not wired")
)
