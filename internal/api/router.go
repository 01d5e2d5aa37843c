/**
 * @description
 * This file sets up the HTTP router for the intake service. It defines the API
 * endpoints, associates them with their handlers, and applies middleware for
 * logging, panic recovery, timeouts and the internal API key check.
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

// TradeRoutes creates and returns the router for the intake service.
func TradeRoutes(h *TradeHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Post("/", h.SubmitTradeHandler)
		r.Get("/", h.ListTradesHandler)
		r.Get("/{id}", h.GetTradeHandler)
		r.Get("/{id}/verify", h.VerifyTradeHandler)
	})

	return r
}
