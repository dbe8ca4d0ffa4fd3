/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/obligations/*   Obligation management and processing
  /api/history/*       Occurrence outcome overrides
  /api/accounts/*      Ledger accounts
  /api/transactions/*  Ledger transactions
  /api/summary         Notification summary
  /api/scan            Manual due-obligation scan
  /api/seed            Demo data
  /api/reset           Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Obligation routes
		r.Route("/obligations", func(r chi.Router) {
			r.Get("/", h.ListObligations)
			r.Post("/", h.CreateObligation)
			r.Get("/{id}", h.GetObligation)
			r.Put("/{id}", h.UpdateObligation)
			r.Delete("/{id}", h.DeleteObligation)
			r.Post("/{id}/pause", h.PauseObligation)
			r.Post("/{id}/resume", h.ResumeObligation)
			r.Post("/{id}/cancel", h.CancelObligation)
			r.Post("/{id}/process", h.ProcessObligation)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/schedule", h.GetSchedule)
		})

		// History routes
		r.Route("/history", func(r chi.Router) {
			r.Post("/{id}/outcome", h.MarkOutcome)
		})

		// Ledger routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/transactions", h.GetAccountTransactions)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		// Engine routes
		r.Get("/summary", h.GetSummary)
		r.Post("/scan", h.TriggerScan)
		r.Post("/seed", h.LoadSeed)
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
