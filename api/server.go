/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     Request logging
  4. CORS:       Cross-origin requests for the booking frontend

ROUTE GROUPS:
  /api/doctors/*   Doctor registry
  /api/tokens/*    Admission, queue view, lifecycle
  /api/slots/*     Occupancy view
  /api/demo/*      Demo data seeding

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Doctor routes
		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", h.ListDoctors)
			r.Post("/", h.CreateDoctor)
		})

		// Token routes
		r.Route("/tokens", func(r chi.Router) {
			r.Post("/", h.AdmitToken)
			r.Get("/{doctorID}", h.GetQueue)
			r.Put("/{id}/cancel", h.CancelToken)
			r.Put("/{id}/status", h.UpdateTokenStatus)
		})

		// Slot routes
		r.Route("/slots", func(r chi.Router) {
			r.Get("/{doctorID}", h.GetSlotStatus)
		})

		// Demo routes
		r.Route("/demo", func(r chi.Router) {
			r.Post("/seed", h.SeedDemo)
		})
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("OPD Token Queue API\n"))
	})

	return r
}
