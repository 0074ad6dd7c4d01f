// Package stripe adapts Stripe webhooks and checkout sessions to the bridge.
package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

const (
	eventCheckoutSessionCompleted = "checkout.session.completed"
	eventSubscriptionDeleted      = "customer.subscription.deleted"
)

// Verifier authenticates raw webhook deliveries and turns them into bridge events.
// It performs no I/O and is safe for concurrent use.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier for the endpoint's signing secret (whsec_...).
// An empty secret is accepted here so the service can still start and report
// the misconfiguration on every delivery.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret)}
}

// Configured reports whether a signing secret is set.
func (v *Verifier) Configured() bool {
	return v.secret != ""
}

// Verify checks the Stripe-Signature header against payload and parses the event.
// Unknown event types are returned with KindUnhandled, never as an error.
func (v *Verifier) Verify(payload []byte, sigHeader string) (*bridge.Event, error) {
	if v.secret == "" {
		return nil, bridge.ErrMissingSecret
	}

	if err := webhook.ValidatePayload(payload, sigHeader, v.secret); err != nil {
		return nil, fmt.Errorf("%w: %w", bridge.ErrBadSignature, err)
	}

	// The signature already matched, so any error left is about the body.
	// API version drift between the dashboard and the SDK is not a delivery failure.
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bridge.ErrMalformedEvent, err)
	}

	return toBridgeEvent(&event)
}

func toBridgeEvent(event *stripe.Event) (*bridge.Event, error) {
	eventType := string(event.Type)
	ev := &bridge.Event{
		ID:      event.ID,
		Type:    eventType,
		Kind:    classify(eventType),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data != nil {
		ev.Raw = event.Data.Raw
	}

	switch ev.Kind {
	case bridge.KindPurchaseCompleted:
		var session stripe.CheckoutSession
		if err := unmarshalData(event, &session); err != nil {
			return nil, err
		}
		fillFromCheckoutSession(ev, &session)
	case bridge.KindSubscriptionEnded:
		var sub stripe.Subscription
		if err := unmarshalData(event, &sub); err != nil {
			return nil, err
		}
		fillFromSubscription(ev, &sub)
	}

	return ev, nil
}

func classify(eventType string) bridge.EventKind {
	switch {
	case eventType == eventCheckoutSessionCompleted:
		return bridge.KindPurchaseCompleted
	case eventType == eventSubscriptionDeleted:
		return bridge.KindSubscriptionEnded
	case strings.HasPrefix(eventType, "product."), strings.HasPrefix(eventType, "price."):
		return bridge.KindProductLifecycle
	default:
		return bridge.KindUnhandled
	}
}

func unmarshalData(event *stripe.Event, v interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: %s event %s has no data object", bridge.ErrMalformedEvent, event.Type, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: %s event %s: %w", bridge.ErrMalformedEvent, event.Type, event.ID, err)
	}
	return nil
}

func fillFromCheckoutSession(ev *bridge.Event, session *stripe.CheckoutSession) {
	ev.SessionID = session.ID
	ev.Metadata = session.Metadata
	if session.Subscription != nil {
		ev.SubscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		ev.CustomerID = session.Customer.ID
	}
	// line_items is only present when the session was expanded
	if session.LineItems != nil {
		for _, item := range session.LineItems.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				ev.PriceIDs = append(ev.PriceIDs, item.Price.ID)
			}
		}
	}
}

func fillFromSubscription(ev *bridge.Event, sub *stripe.Subscription) {
	ev.SubscriptionID = sub.ID
	ev.Metadata = sub.Metadata
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				ev.PriceIDs = append(ev.PriceIDs, item.Price.ID)
			}
		}
	}
}
