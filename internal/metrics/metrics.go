// Package metrics defines herald's Prometheus collectors. Counters are
// registered on the default registry at init; the gateway exposes them
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the reply and poke counters.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
	OutcomeSkipped = "skipped"
)

// Direction label values for MessagesTotal.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	// MessagesTotal counts messages crossing a channel boundary.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_messages_total",
		Help: "Messages processed, by channel and direction.",
	}, []string{"channel", "direction"})

	// RepliesTotal counts generated replies by outcome.
	RepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_replies_total",
		Help: "Replies generated, by outcome.",
	}, []string{"outcome"})

	// ProviderRequestsTotal counts model requests by provider and outcome.
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_provider_requests_total",
		Help: "Model completion requests, by provider and outcome.",
	}, []string{"provider", "outcome"})

	// HeartbeatTicksTotal counts heartbeat timer fires.
	HeartbeatTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_heartbeat_ticks_total",
		Help: "Heartbeat ticks fired.",
	})

	// HeartbeatPokesTotal counts per-session heartbeat pokes by outcome.
	HeartbeatPokesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_heartbeat_pokes_total",
		Help: "Heartbeat pokes delivered to sessions, by outcome.",
	}, []string{"outcome"})

	// HTTPRequestsTotal counts gateway requests by route and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_http_requests_total",
		Help: "Gateway HTTP requests, by route and status code.",
	}, []string{"route", "code"})

	// SessionsActive tracks the number of live sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herald_sessions_active",
		Help: "Sessions currently tracked by the router.",
	})
)
