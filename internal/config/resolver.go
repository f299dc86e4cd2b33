package config

import (
	"slices"
	"strings"
)

// namespaceRank orders module namespaces so that service providers load
// before their consumers: telemetry first (everything may trace), then
// stores, providers, and tools, then the gateway (publishes the webhook
// dispatcher), then channels (webhook mode consumes it), then the
// heartbeat and the scheduler, which observe everything else.
var namespaceRank = map[string]int{
	"telemetry": 0,
	"memory":    1,
	"provider":  2,
	"tool":      3,
	"gateway":   4,
	"console":   5,
	"channel":   6,
	"heartbeat": 7,
	"cron":      8,
}

const defaultRank = 4

// Resolve returns the module IDs from the configuration in load order:
// ranked by namespace, alphabetical within a rank. The order is
// deterministic for identical configs.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		ra, rb := rankOf(a), rankOf(b)
		if ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})
	return ids
}

func rankOf(id string) int {
	ns := id
	if i := strings.Index(id, "."); i >= 0 {
		ns = id[:i]
	}
	if r, ok := namespaceRank[ns]; ok {
		return r
	}
	return defaultRank
}
