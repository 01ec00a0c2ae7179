// Package routes registers all HTTP routes for the API.
package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traceprint/api/internal/infra/http/handler"
	"github.com/traceprint/api/internal/infra/http/middleware"
	"github.com/traceprint/api/internal/infra/websocket"
)

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Provider  *handler.ProviderHandler
	Scan      *handler.ScanHandler
	Budget    *handler.BudgetHandler
	WebSocket *websocket.Handler
}

// Register mounts all routes on the router. The request timeout applies to
// the REST endpoints only; the websocket endpoint is long-lived and exempt.
func Register(r *chi.Mux, h *Handlers, requestTimeout time.Duration) {
	r.Get("/healthz", h.Health.Health)
	r.Get("/readyz", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.With(middleware.WorkspaceContext()).Get("/ws", h.WebSocket.ServeWS)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))
			g.Use(middleware.WorkspaceContext())

			g.Get("/providers", h.Provider.List)

			g.Route("/scans", func(sr chi.Router) {
				sr.Post("/", h.Scan.Create)
				sr.Get("/", h.Scan.List)
				sr.Get("/{scanID}", h.Scan.Get)
				sr.Post("/{scanID}/cancel", h.Scan.Cancel)
				sr.Get("/{scanID}/findings", h.Scan.ListFindings)
			})

			g.Route("/budgets", func(br chi.Router) {
				br.Get("/", h.Budget.ListPolicies)
				br.Put("/{provider}", h.Budget.SetPolicy)
				br.Get("/{provider}", h.Budget.GetPolicy)
				br.Get("/{provider}/usage", h.Budget.Usage)
			})

			g.Get("/budget-alerts", h.Budget.ListAlerts)
		})
	})
}
