package cron

import (
	"context"
	"log/slog"
	"time"
)

// SessionPruner is the slice of the session store the prune job needs.
// Declared here so the job does not depend on the router package.
type SessionPruner interface {
	Prune(maxIdle time.Duration) int
}

// SessionPruneJob drops sessions idle longer than MaxIdle. The
// heartbeat stops poking them well before this cutoff; pruning
// reclaims the memory.
type SessionPruneJob struct {
	Store        SessionPruner
	MaxIdle      time.Duration // zero selects 24h
	Logger       *slog.Logger
	ScheduleExpr string // empty selects "*/5 * * * *"
}

var _ Job = (*SessionPruneJob)(nil)

// Name implements Job.
func (j *SessionPruneJob) Name() string { return "session_prune" }

// Schedule implements Job.
func (j *SessionPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run implements Job.
func (j *SessionPruneJob) Run(_ context.Context) error {
	maxIdle := j.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	if pruned := j.Store.Prune(maxIdle); pruned > 0 {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned, "max_idle", maxIdle)
	}
	return nil
}

// ChainProber is the slice of the provider chain the probe job needs.
type ChainProber interface {
	Probe(ctx context.Context) error
}

// ProviderProbeJob actively health-checks the provider chain so dead
// backends revive and latent failures surface in the logs before user
// traffic hits them.
type ProviderProbeJob struct {
	Chain        ChainProber
	Logger       *slog.Logger
	ScheduleExpr string // empty selects "*/15 * * * *"
}

var _ Job = (*ProviderProbeJob)(nil)

// Name implements Job.
func (j *ProviderProbeJob) Name() string { return "provider_probe" }

// Schedule implements Job.
func (j *ProviderProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run implements Job.
func (j *ProviderProbeJob) Run(ctx context.Context) error {
	return j.Chain.Probe(ctx)
}

// Maintainer is implemented by storage backends with periodic upkeep:
// vacuum, checkpoint, expiry sweeps. Backends publish themselves under
// a "maintenance."-prefixed service key and the cron module picks
// them up.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// MaintenanceJob runs one backend's upkeep on a daily-by-default
// schedule.
type MaintenanceJob struct {
	Target       Maintainer
	Label        string // backend name, e.g. "sqlite"
	Logger       *slog.Logger
	ScheduleExpr string // empty selects "0 3 * * *"
}

var _ Job = (*MaintenanceJob)(nil)

// Name implements Job.
func (j *MaintenanceJob) Name() string { return "maintenance:" + j.Label }

// Schedule implements Job.
func (j *MaintenanceJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 3 * * *"
}

// Run implements Job.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	if err := j.Target.Maintain(ctx); err != nil {
		return err
	}
	j.Logger.Debug("cron: maintenance completed", "backend", j.Label)
	return nil
}
