/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

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
  4. CORS:       Cross-origin requests for the treasurer frontend

ROUTE GROUPS:
  /api/members/*       Roster view, eligibility, per-member records
  /api/pricing         Dues price configuration
  /api/cycles/*        Annual dues cycles
  /api/dues/*          Payment recording and debtor lists
  /api/events/*        Benefit events
  /api/allocations/*   Card allocations, sales, releases
  /api/movements       Financial ledger
  /api/treasury/*      Balance summary

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
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Roster routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.UpsertMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/eligibility", h.GetEligibility)
			r.Get("/{id}/dues-status", h.GetDuesStatus)
			r.Put("/{id}/student", h.SetStudentStatus)
			r.Put("/{id}/dues-deactivation", h.SetDuesDeactivation)
			r.Get("/{id}/debt", h.GetMemberDebt)
			r.Get("/{id}/dues-payments", h.ListMemberDuesPayments)
			r.Get("/{id}/allocations", h.ListMemberAllocations)
		})

		// Pricing routes
		r.Route("/pricing", func(r chi.Router) {
			r.Get("/", h.GetPricing)
			r.Put("/", h.UpdatePricing)
		})

		// Cycle routes
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", h.ListCycles)
			r.Post("/", h.CreateCycle)
			r.Get("/{year}", h.GetCycle)
			r.Post("/{year}/activate", h.ActivateCycle)
			r.Post("/{year}/close", h.CloseCycle)
			r.Post("/{year}/reopen", h.ReopenCycle)
		})

		// Dues routes
		r.Route("/dues", func(r chi.Router) {
			r.Post("/payments", h.RecordDuesPayment)
			r.Get("/debtors", h.ListDebtors)
		})

		// Event routes
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Get("/{id}/allocations", h.ListEventAllocations)
			r.Get("/{id}/debtors", h.ListEventDebtors)
			r.Get("/{id}/stats", h.GetEventStats)
			r.Post("/{id}/close", h.CloseEvent)
		})

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Get("/{id}", h.GetAllocation)
			r.Get("/{id}/payments", h.ListAllocationPayments)
			r.Post("/{id}/sales", h.RecordSale)
			r.Post("/{id}/releases", h.ReleaseCards)
		})

		// Ledger routes
		r.Get("/movements", h.ListMovements)
		r.Get("/treasury/balance", h.GetBalance)
	})

	return r
}
