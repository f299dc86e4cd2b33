package sqlite

import (
	"context"
	"fmt"
	"time"
)

// lastMaintenanceKey is the kv entry stamped after each upkeep run.
const lastMaintenanceKey = "maintenance:last_run"

// Maintain runs periodic upkeep: checkpoint the WAL, return freed
// pages to the filesystem, refresh the query planner statistics, and
// stamp the run in the kv table. The cron module calls this through
// the "maintenance.sqlite" service.
func (m *Module) Maintain(ctx context.Context) error {
	started := time.Now()

	for _, pragma := range []string{
		"PRAGMA wal_checkpoint(TRUNCATE)",
		"PRAGMA incremental_vacuum",
		"PRAGMA optimize",
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: maintenance %s: %w", pragma, err)
		}
	}

	if err := m.kv.Put(ctx, lastMaintenanceKey, started.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	m.logger.Debug("sqlite maintenance completed", "elapsed", time.Since(started))
	return nil
}
