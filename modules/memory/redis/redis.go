// Package redis implements the Redis-backed memory module: history,
// summaries, and the key-value store on a shared client. Session keys
// can carry a TTL so idle conversations expire server-side instead of
// waiting for the prune job. Useful when several bot instances share
// state or when the host has no durable disk.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
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

// Module provides HistoryStore and KVStore backed by Redis. Loading it
// replaces the in-memory defaults the same way memory.sqlite does;
// configurations load one memory backend, not both.
type Module struct {
	config  Config
	client  *goredis.Client
	logger  *slog.Logger
	history *historyStore
	kv      *kvStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.redis",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("redis: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The client is created here
// but no connection is made until the first command; Validate pings.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if err := m.config.parse(); err != nil {
		return err
	}

	opts, err := goredis.ParseURL(m.config.URL)
	if err != nil {
		return fmt.Errorf("redis: parse url: %w", err)
	}

	m.client = goredis.NewClient(opts)
	m.history = &historyStore{client: m.client, prefix: m.config.KeyPrefix, ttl: m.config.ttl}
	m.kv = &kvStore{client: m.client, prefix: m.config.KeyPrefix}

	ctx.RegisterService("memory.history", m.history)
	ctx.RegisterService("memory.kv", m.kv)
	ctx.RegisterService("status.redis", m.statusReport)

	m.logger.Info("redis memory provisioned",
		"addr", opts.Addr,
		"db", opts.DB,
		"ttl", m.config.ttl,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.client == nil {
		return nil
	}
	m.logger.Info("redis memory stopping")
	return m.client.Close()
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
	stats := m.client.PoolStats()
	return map[string]any{
		"prefix":      m.config.KeyPrefix,
		"ttl":         m.config.ttl.String(),
		"conns_total": stats.TotalConns,
		"conns_idle":  stats.IdleConns,
	}
}
