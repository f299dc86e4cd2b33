// Package sqlite implements the durable memory module: conversation
// history, compaction summaries, and the key-value store in one
// database file. It uses modernc.org/sqlite (pure Go, no CGO) with WAL
// mode and a single-connection pool.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ memory.HistoryStore = (*historyStore)(nil)
	_ memory.KVStore      = (*kvStore)(nil)
	_ core.Configurable   = (*Module)(nil)
	_ core.Provisioner    = (*Module)(nil)
	_ core.Validator      = (*Module)(nil)
	_ core.Stopper        = (*Module)(nil)
)

// Module provides HistoryStore and KVStore backed by a single SQLite
// database. Loading it replaces the in-memory defaults, so history and
// the Telegram update offset survive restarts.
type Module struct {
	config  Config
	db      *sql.DB
	logger  *slog.Logger
	history *historyStore
	kv      *kvStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := openDB(m.config.Path, m.config.walEnabled(), m.config.BusyTimeout)
	if err != nil {
		return err
	}

	m.db = db
	m.history = &historyStore{db: db}
	m.kv = &kvStore{db: db}

	ctx.RegisterService("memory.history", m.history)
	ctx.RegisterService("memory.kv", m.kv)
	ctx.RegisterService("maintenance.sqlite", m)
	ctx.RegisterService("status.sqlite", m.statusReport)

	m.logger.Info("sqlite memory provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(context.TODO(), "SELECT count(*) FROM messages").Scan(&n); err != nil {
		return fmt.Errorf("sqlite: schema check failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	m.logger.Info("sqlite memory stopping")
	return m.db.Close()
}

// History returns the HistoryStore implementation.
func (m *Module) History() memory.HistoryStore {
	return m.history
}

// KV returns the KVStore implementation.
func (m *Module) KV() memory.KVStore {
	return m.kv
}

func (m *Module) statusReport() map[string]any {
	report := map[string]any{"path": m.config.Path}

	ctx := context.TODO()
	var messages, sessions, keys int
	if err := m.db.QueryRowContext(ctx, "SELECT count(*) FROM messages").Scan(&messages); err == nil {
		report["messages"] = messages
	}
	if err := m.db.QueryRowContext(ctx, "SELECT count(DISTINCT session_id) FROM messages").Scan(&sessions); err == nil {
		report["sessions"] = sessions
	}
	if err := m.db.QueryRowContext(ctx, "SELECT count(*) FROM kv").Scan(&keys); err == nil {
		report["kv_keys"] = keys
	}
	return report
}
