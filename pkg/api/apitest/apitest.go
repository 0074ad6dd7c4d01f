// Package apitest builds api.Handlers and signed deliveries for router tests.
package apitest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/rolebridge/pkg/api"
	"github.com/mihaimyh/rolebridge/pkg/bridge"
	bridgestripe "github.com/mihaimyh/rolebridge/pkg/stripe"
)

// Secret signs deliveries built by SignedWebhook.
const Secret = "whsec_apitest"

// PaymentURL is returned by the stub checkout.
const PaymentURL = "https://checkout.stripe.com/c/pay/cs_apitest"

// PurchasePayload is a minimal checkout.session.completed event.
const PurchasePayload = `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1700000000,` +
	`"data":{"object":{"id":"sess_1","object":"checkout.session","subscription":"sub_1","metadata":{"member_id":"42"}}}}`

// Reconciler records the events it receives and reports them done.
type Reconciler struct {
	mu     sync.Mutex
	events []*bridge.Event
}

// Reconcile implements api.EventReconciler
func (r *Reconciler) Reconcile(_ context.Context, ev *bridge.Event) bridge.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return bridge.Outcome{Status: bridge.StatusDone, Stage: bridge.StageDone}
}

// Events returns the events seen so far.
func (r *Reconciler) Events() []*bridge.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*bridge.Event(nil), r.events...)
}

type stubCheckout struct{}

func (stubCheckout) CreatePaymentLink(context.Context, string, string) (string, error) {
	return PaymentURL, nil
}

// NewHandler returns a handler verifying with Secret and a recording reconciler.
func NewHandler(t *testing.T) (*api.Handler, *Reconciler) {
	t.Helper()
	mapping, err := bridge.NewEntitlementMapping(
		map[string]string{"price_abc": "role_vip"},
		[]bridge.PlanPrice{{Name: "vip", PriceID: "price_abc"}},
	)
	require.NoError(t, err)

	rec := &Reconciler{}
	h, err := api.NewHandler(api.Config{
		Verifier:   bridgestripe.NewVerifier(Secret),
		Reconciler: rec,
		Mapping:    mapping,
		Checkout:   stubCheckout{},
		RateLimit:  -1,
	})
	require.NoError(t, err)
	return h, rec
}

// SignedWebhook returns a POST to the webhook path carrying a valid signature.
func SignedWebhook(t *testing.T) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(PurchasePayload),
		Secret:    Secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, api.BasePath, bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// UnsignedWebhook returns a POST to the webhook path without a signature.
func UnsignedWebhook() *http.Request {
	req := httptest.NewRequest(http.MethodPost, api.BasePath, bytes.NewReader([]byte(PurchasePayload)))
	req.Header.Set("Content-Type", "application/json")
	return req
}
