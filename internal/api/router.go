/**
 * @description
 * This file sets up the HTTP router for the raffle-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthHandler reports process liveness. It is registered on the root router,
// outside the versioned API mount.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}

// RaffleRoutes creates and returns a new router for the raffle service.
func RaffleRoutes(h *RaffleHandlers, accessTokens []string, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(accessTokens, jwksURL))

		r.Post("/tickets", h.PurchaseTicketHandler)
		r.Get("/tickets/{ticketID}", h.GetTicketHandler)

		r.Get("/raffles", h.ListRafflesHandler)
		r.Get("/raffles/{raffleID}", h.GetRaffleHandler)
		r.Get("/raffles/{raffleID}/tickets", h.ListRaffleTicketsHandler)

		// Administrative endpoints, static access tokens only.
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Post("/raffles", h.CreateRaffleHandler)
			r.Patch("/raffles/{raffleID}", h.UpdateRaffleHandler)
			r.Delete("/raffles/{raffleID}", h.DeleteRaffleHandler)
			r.Get("/tickets", h.ListTicketsHandler)
			r.Delete("/tickets/{ticketID}", h.DeleteTicketHandler)
		})
	})

	return r
}
