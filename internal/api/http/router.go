package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/msp-sla/internal/api/http/handlers"
	"github.com/spec-kit/msp-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Policies       *handlers.SLAPolicyHandler
	TicketSLA      *handlers.TicketSLAHandler
	Escalations    *handlers.EscalationHandler
	Workflows      *handlers.WorkflowHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	supervisor := auth.RequireSupervisor()

	policies := api.Group("/sla-policies")
	policies.Post("/validate", cfg.Policies.Validate)
	policies.Get("/", cfg.Policies.List)
	policies.Get("/:id", cfg.Policies.Get)
	policies.Post("/", supervisor, cfg.Policies.Create)
	policies.Put("/:id", supervisor, cfg.Policies.Update)
	policies.Post("/:id/deactivate", supervisor, cfg.Policies.Deactivate)

	tickets := api.Group("/tickets/:id")
	tickets.Post("/sla", cfg.TicketSLA.Initialize)
	tickets.Get("/sla", cfg.TicketSLA.Get)
	tickets.Get("/sla/history", cfg.TicketSLA.History)
	tickets.Post("/first-response", cfg.TicketSLA.FirstResponse)
	tickets.Post("/resolve", cfg.TicketSLA.Resolve)
	tickets.Post("/escalation/evaluate", cfg.TicketSLA.Evaluate)
	tickets.Post("/transitions/:transitionId", cfg.Workflows.Execute)

	api.Post("/escalations/scan", supervisor, cfg.Escalations.Scan)
	api.Get("/workflows/:id/validation", cfg.Workflows.Validate)
}
