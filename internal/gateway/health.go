package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/heraldbot/herald/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"` // "ok" or "degraded"
	Sessions  int                    `json:"sessions"`
	Providers []provider.EntryStatus `json:"providers,omitempty"`
}

// handleHealth answers 200 while every provider is usable and 503 once
// one is dead; cooldown is transient and does not degrade liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if g.sessions != nil {
		resp.Sessions = g.sessions.Len()
	}

	if g.chain != nil {
		resp.Providers = g.chain.Status()
		for _, p := range resp.Providers {
			if p.State == "dead" {
				resp.Status = "degraded"
				break
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "degraded" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
