/**
 * @description
 * This file sets up the HTTP router for the contract-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware for authentication, logging, panic recovery and CORS.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the contract-service router. authMiddleware authenticates end users;
// internalKey protects the operator endpoints.
func NewRouter(h *Handlers, authMiddleware func(http.Handler) http.Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// The gateway calls this without a user token; the payload signature is verified instead.
	r.Post("/payments/webhook", h.GatewayWebhookHandler)

	r.Route("/internal/contracts", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/leases/repair", h.RepairLeasesHandler)
		r.Post("/{id}/reconcile", h.ReconcileContractHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/contracts", h.CreateContractHandler)
		r.Get("/contracts", h.ListContractsHandler)
		r.Get("/contracts/{id}", h.GetContractHandler)
		r.Put("/contracts/{id}", h.EditContractHandler)
		r.Delete("/contracts/{id}", h.DeleteContractHandler)
		r.Post("/contracts/{id}/lock", h.LockContractHandler)
		r.Post("/contracts/{id}/recall", h.RecallContractHandler)
		r.Post("/contracts/{id}/sign", h.SignContractHandler)
		r.Get("/contracts/{id}/fees", h.PreviewFeesHandler)

		r.Post("/payments/intent", h.CreatePaymentIntentHandler)
	})

	return r
}
