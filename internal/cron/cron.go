// Package cron schedules periodic background maintenance: pruning
// idle sessions, probing provider health, and storage upkeep. Jobs
// run on 5-field cron expressions; a job whose previous run is still
// going skips the tick instead of stacking up.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name returns a unique identifier, used for logging and dedup.
	Name() string

	// Schedule returns a 5-field cron expression (e.g. "*/5 * * * *").
	Schedule() string

	// Run executes one tick. Implementations should honor ctx
	// cancellation during long work.
	Run(ctx context.Context) error
}
