// Package api exposes the bridge over HTTP: the payment webhook, payment
// link creation and plan listing.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihaimyh/rolebridge/pkg/api/internal"
	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

const (
	signatureHeader = "Stripe-Signature"
	maxMemberIDLen  = 20 // uint64 snowflake
)

// Handler provides the bridge's HTTP endpoints
type Handler struct {
	config  Config
	limiter *internal.RateLimiter
}

// NewHandler creates a new Handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.setDefaults()

	h := &Handler{config: config}
	h.limiter = internal.NewRateLimiter(config.RateLimit, defaultRateWindow).TrustProxyHeaders(config.TrustProxyHeaders).OnLimited(func(ip string) {
		h.config.Metrics.RecordWebhookError("rate_limited")
		h.config.Logger.Warn("request rate limited", bridge.F("ip", ip))
	})
	return h, nil
}

// RateLimit wraps next with the handler's per-IP limiter.
func (h *Handler) RateLimit(next http.Handler) http.Handler {
	return h.limiter.Middleware(next)
}

// Webhook receives payment provider events. Every verified event is answered
// with 200 whatever the business outcome; only deliveries that cannot be
// trusted or read get a 4xx.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := internal.ReadBodyStrict(w, r, h.config.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			h.config.Metrics.RecordWebhookError("payload_too_large")
			h.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.config.Metrics.RecordWebhookError("invalid_payload")
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	h.config.Logger.Debug("reconciliation stage",
		bridge.F("stage", string(bridge.StageReceived)),
		bridge.F("bytes", len(body)))

	ev, err := h.config.Verifier.Verify(body, r.Header.Get(signatureHeader))
	if err != nil {
		errType := verificationErrorType(err)
		h.config.Metrics.RecordWebhookError(errType)
		h.config.Logger.Warn("webhook rejected",
			bridge.F("reason", errType),
			bridge.F("ip", internal.GetClientIP(r, h.config.TrustProxyHeaders)),
			bridge.F("error", err.Error()))
		h.writeError(w, http.StatusBadRequest, "webhook verification failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.config.ProcessTimeout)
	defer cancel()
	out := h.config.Reconciler.Reconcile(ctx, ev)

	fields := []bridge.Field{
		bridge.F("event_id", ev.ID),
		bridge.F("type", ev.Type),
		bridge.F("status", string(out.Status)),
		bridge.F("stage", string(out.Stage)),
	}
	if out.Reason != "" {
		fields = append(fields, bridge.F("reason", out.Reason))
	}
	h.config.Logger.Info("webhook processed", fields...)

	_ = internal.WriteJSON(w, http.StatusOK, WebhookResponse{
		Received: true,
		Status:   out.Status,
		Reason:   out.Reason,
	})
}

// CreatePaymentLink answers GET ?discordId=<id>[&plan=<name>] with a checkout URL.
func (h *Handler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodGet {
		h.handleError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	memberID := strings.TrimSpace(r.URL.Query().Get("discordId"))
	if memberID == "" {
		h.handleError(w, r, http.StatusBadRequest, fmt.Errorf("discordId is required"))
		return
	}
	if len(memberID) > maxMemberIDLen {
		h.handleError(w, r, http.StatusBadRequest, fmt.Errorf("discordId is invalid"))
		return
	}
	if _, err := strconv.ParseUint(memberID, 10, 64); err != nil {
		h.handleError(w, r, http.StatusBadRequest, fmt.Errorf("discordId is invalid"))
		return
	}

	plan := strings.TrimSpace(r.URL.Query().Get("plan"))
	priceID, ok := h.planPrice(plan)
	switch {
	case !ok && plan != "":
		h.handleError(w, r, http.StatusBadRequest, fmt.Errorf("unknown plan"))
		return
	case !ok:
		h.handleError(w, r, http.StatusServiceUnavailable, fmt.Errorf("no plan configured"))
		return
	}

	if h.config.Checkout == nil {
		h.handleError(w, r, http.StatusServiceUnavailable, fmt.Errorf("checkout is not configured"))
		return
	}

	start := time.Now()
	url, err := h.config.Checkout.CreatePaymentLink(r.Context(), memberID, priceID)
	if err != nil {
		h.config.Logger.Error("failed to create payment link",
			bridge.F("member_id", memberID),
			bridge.F("price_id", priceID),
			bridge.F("error", err.Error()))
		h.handleError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to create payment link"))
		return
	}
	h.config.Logger.Info("payment link created",
		bridge.F("member_id", memberID),
		bridge.F("price_id", priceID),
		bridge.F("duration_ms", time.Since(start).Milliseconds()))

	_ = internal.WriteJSON(w, http.StatusOK, PaymentLinkResponse{URL: url})
}

// Plans lists the purchasable plans in configuration order.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	internal.SetSecurityHeaders(w)
	if r.Method != http.MethodGet {
		h.handleError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	_ = internal.WriteJSON(w, http.StatusOK, PlansResponse{Plans: h.config.Mapping.Plans()})
}

// Healthz reports readiness of the directory connection.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if h.config.Ready != nil && !h.config.Ready() {
		_ = internal.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	_ = internal.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunLimiterCleanup evicts expired rate limit windows every interval until ctx is done.
func (h *Handler) RunLimiterCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.limiter.Cleanup()
		}
	}
}

// planPrice resolves a plan name to a price; an empty name means the default plan.
func (h *Handler) planPrice(name string) (string, bool) {
	if name == "" {
		return h.config.Mapping.DefaultPrice()
	}
	return h.config.Mapping.PriceForName(name)
}

// handleError renders query endpoint errors, honouring Config.OnError.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, statusCode, err)
		return
	}
	h.writeError(w, statusCode, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, msg string) {
	_ = internal.WriteJSON(w, statusCode, ErrorResponse{Error: msg})
}

func verificationErrorType(err error) string {
	switch {
	case errors.Is(err, bridge.ErrMissingSecret):
		return "missing_secret"
	case errors.Is(err, bridge.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, bridge.ErrMalformedEvent):
		return "malformed_event"
	default:
		return "verification_failed"
	}
}
