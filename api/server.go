// Package api exposes the order lifecycle over HTTP: one submission endpoint
// per computation mode and idempotent polling endpoints keyed by order id.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openrec/lemd/core/logger"
	"github.com/openrec/lemd/core/orders"
)

// Deps bundles what the handlers need.
type Deps struct {
	Manager *orders.Manager
	Log     logger.Logger
}

// NewRouter builds the service router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/vanilla/{pricing_mechanism}", handleSubmitVanilla(deps))
	r.Post("/dual", handleSubmitDual(deps))
	r.Post("/loop/{lem_organization}/{pricing_mechanism}", handleSubmitLoop(deps))

	r.Get("/vanilla/{order_id}", handleResultVanilla(deps))
	r.Get("/dual/{order_id}", handleResultDual(deps))
	r.Get("/loop/pool/{order_id}", handleResultLoop(deps, "pool"))
	r.Get("/loop/bilateral/{order_id}", handleResultLoop(deps, "bilateral"))

	return r
}

// requestID tags each request with an id for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
