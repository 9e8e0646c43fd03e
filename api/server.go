/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*      Per-employee balance and grant views
  /api/recovery-days/*  Conversion, grant CRUD and lifecycle

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee views
		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}/recovery-balance", h.GetBalance)
			r.Get("/{id}/recovery-days", h.GetEmployeeGrants)
			r.Get("/{id}/recovery-summary", h.GetSummary)
			r.Get("/{id}/blocked-dates", h.GetBlockedDates)
		})

		// Conversion and grant lifecycle
		r.Route("/recovery-days", func(r chi.Router) {
			r.Post("/convert", h.Convert)
			r.Post("/", h.CreateGrant)
			r.Get("/", h.ListGrants)
			r.Get("/{id}", h.GetGrant)
			r.Patch("/{id}", h.UpdateGrant)
			r.Post("/{id}/approve", h.ApproveGrant)
			r.Post("/{id}/cancel", h.CancelGrant)
		})
	})

	return r
}
