package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

const (
	defaultMaxBodyBytes   = 256 * 1024
	defaultRateLimit      = 100
	defaultRateWindow     = time.Minute
	defaultProcessTimeout = 30 * time.Second
)

// EventVerifier authenticates and parses a raw webhook delivery.
type EventVerifier interface {
	Verify(payload []byte, sigHeader string) (*bridge.Event, error)
}

// EventReconciler applies a verified event.
type EventReconciler interface {
	Reconcile(ctx context.Context, ev *bridge.Event) bridge.Outcome
}

// PaymentLinker creates hosted checkout links.
type PaymentLinker interface {
	CreatePaymentLink(ctx context.Context, memberID, priceID string) (string, error)
}

// Config holds configuration for the bridge HTTP handler
type Config struct {
	// Verifier authenticates webhook deliveries (required)
	Verifier EventVerifier

	// Reconciler applies verified events (required)
	Reconciler EventReconciler

	// Mapping supplies plans and the default checkout price (required)
	Mapping *bridge.EntitlementMapping

	// Checkout creates payment links. If nil, the payment link endpoint
	// answers 503.
	Checkout PaymentLinker

	// RateLimit is the per-IP request budget per minute for the payment
	// link endpoint. Webhooks are gated by their signature instead. Zero means the default (100); negative disables limiting.
	RateLimit int

	// TrustProxyHeaders keys rate limiting and logged client addresses on
	// X-Forwarded-For. Enable only behind a proxy that overwrites it.
	TrustProxyHeaders bool

	// MaxBodyBytes caps webhook payloads. Defaults to 256 KiB.
	MaxBodyBytes int64

	// ProcessTimeout bounds one reconciliation. It is detached from the
	// request so a dropped connection does not cut a workflow in half.
	ProcessTimeout time.Duration

	// Ready reports readiness for /healthz. If nil, always ready.
	Ready func() bool

	// Logger is optional; defaults to NoopLogger
	Logger bridge.Logger

	// Metrics is optional; defaults to NoopMetrics
	Metrics bridge.Metrics

	// OnError overrides JSON error rendering for the query endpoints.
	OnError func(http.ResponseWriter, *http.Request, int, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Verifier == nil {
		return fmt.Errorf("verifier is required")
	}
	if c.Reconciler == nil {
		return fmt.Errorf("reconciler is required")
	}
	if c.Mapping == nil {
		return fmt.Errorf("mapping is required")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes must not be negative")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.RateLimit == 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = defaultProcessTimeout
	}
	if c.Logger == nil {
		c.Logger = &bridge.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &bridge.NoopMetrics{}
	}
}
