package api

import "net/http"

// Route is one endpoint for mounting the handler on another router.
type Route struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Routes lists the handler's endpoints with absolute paths, rate limiting
// already applied to the payment link endpoint.
func (h *Handler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/healthz", Handler: http.HandlerFunc(h.Healthz)},
		{Method: http.MethodGet, Path: BasePath + "/plans", Handler: http.HandlerFunc(h.Plans)},
		{Method: http.MethodPost, Path: BasePath, Handler: http.HandlerFunc(h.Webhook)},
		{Method: http.MethodGet, Path: BasePath + "/create-payment-link", Handler: h.RateLimit(http.HandlerFunc(h.CreatePaymentLink))},
	}
}
