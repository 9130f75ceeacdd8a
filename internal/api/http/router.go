package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Reconcile      *handlers.ReconcileHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/claim", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin, auth.RoleService), cfg.Tickets.ClaimTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/ratings/service", auth.RequireRole(auth.RoleOwner, auth.RoleService), cfg.Tickets.RateService)
	tickets.Post("/:id/ratings/staff", auth.RequireRole(auth.RoleOwner, auth.RoleService), cfg.Tickets.RateStaff)

	platform := app.Group("/platform", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleService))
	platform.Post("/messages", cfg.Tickets.InboundMessage)

	app.Post("/reconcile", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleAdmin, auth.RoleService), cfg.Reconcile.Run)
}
