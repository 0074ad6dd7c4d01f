package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BasePath is where the bridge routes are mounted.
const BasePath = "/api/payment-webhook"

// NewRouter assembles the service's routes. metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	if h.config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Get("/plans", h.Plans)
		r.HandleFunc("/", h.Webhook)
		r.With(h.RateLimit).HandleFunc("/create-payment-link", h.CreatePaymentLink)
	})
	return r
}
