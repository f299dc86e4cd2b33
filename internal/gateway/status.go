package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/heraldbot/herald/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Sessions      int                    `json:"sessions"`
	Providers     []provider.EntryStatus `json:"providers,omitempty"`
	Webhooks      []string               `json:"webhooks,omitempty"`

	// Modules carries the "status."-prefixed report funcs collected
	// from the service registry: heartbeat, cron, channels.
	Modules map[string]any `json:"modules,omitempty"`
}

// handleStatus serves GET /status. Module sections are collected live
// so the report reflects the moment of the request, not the moment of
// startup.
func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version:       g.version,
		UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		Webhooks:      g.dispatcher.Sources(),
	}

	if g.sessions != nil {
		resp.Sessions = g.sessions.Len()
	}
	if g.chain != nil {
		resp.Providers = g.chain.Status()
	}

	if g.appCtx != nil {
		sections := g.appCtx.ServicesPrefix("status.")
		if len(sections) > 0 {
			resp.Modules = make(map[string]any, len(sections))
			for name, svc := range sections {
				report, ok := svc.(func() map[string]any)
				if !ok {
					continue
				}
				resp.Modules[name] = report()
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
