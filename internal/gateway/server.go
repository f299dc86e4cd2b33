package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter assembles the route tree. Health, metrics, and webhook
// ingestion are public; /status and everything under /admin sits
// behind the auth middleware.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestMetrics)

	r.Get("/health", g.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhooks/{source}", g.dispatcher.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(g.config.Auth))

		r.Get("/status", g.handleStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/config", g.handleGetConfig)
			r.Post("/config/reload", g.handleReloadConfig)
			r.Get("/sessions", g.handleListSessions)
			r.Delete("/sessions/{id}", g.handleDeleteSession)
			r.Get("/modules", g.handleListModules)

			if g.console != nil {
				r.Mount("/console", g.console)
			}
		})
	})

	return r
}
