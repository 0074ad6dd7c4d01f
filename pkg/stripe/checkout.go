package stripe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// SessionAPI is the subset of the Stripe checkout sessions service used here.
// *stripe.Client's V1CheckoutSessions satisfies it.
type SessionAPI interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	ListLineItems(ctx context.Context, params *stripe.CheckoutSessionListLineItemsParams) stripe.Seq2[*stripe.LineItem, error]
}

// CheckoutConfig configures checkout session creation.
type CheckoutConfig struct {
	// Sessions is the checkout sessions API (required)
	Sessions SessionAPI

	SuccessURL string
	CancelURL  string

	// Logger is optional; defaults to NoopLogger
	Logger bridge.Logger
}

// Checkout creates checkout sessions and reads their line items.
type Checkout struct {
	sessions   SessionAPI
	successURL string
	cancelURL  string
	logger     bridge.Logger
}

// NewClientSessions returns the checkout sessions service of a new Stripe client.
func NewClientSessions(apiKey string) (SessionAPI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("stripe api key is required")
	}
	return stripe.NewClient(apiKey).V1CheckoutSessions, nil
}

// NewCheckout validates config and builds a Checkout.
func NewCheckout(config CheckoutConfig) (*Checkout, error) {
	if config.Sessions == nil {
		return nil, fmt.Errorf("checkout sessions api is required")
	}
	if config.SuccessURL == "" || config.CancelURL == "" {
		return nil, fmt.Errorf("checkout success and cancel urls are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = &bridge.NoopLogger{}
	}
	return &Checkout{
		sessions:   config.Sessions,
		successURL: config.SuccessURL,
		cancelURL:  config.CancelURL,
		logger:     logger,
	}, nil
}

// CreatePaymentLink creates a subscription checkout session for priceID and
// returns its hosted URL. The member id travels as session and subscription
// metadata so the completed event can be attributed.
func (c *Checkout) CreatePaymentLink(ctx context.Context, memberID, priceID string) (string, error) {
	if _, err := strconv.ParseUint(memberID, 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", bridge.ErrMemberIDMissing, memberID)
	}
	if priceID == "" {
		return "", fmt.Errorf("%w: no price for checkout", bridge.ErrPriceNotFound)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		ClientReferenceID: stripe.String(memberID),
		Metadata:          map[string]string{bridge.MetadataMemberID: memberID},
	}
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(bridge.MetadataMemberID, memberID)

	session, err := c.sessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	c.logger.Info("checkout session created",
		bridge.F("session_id", session.ID),
		bridge.F("member_id", memberID),
		bridge.F("price_id", priceID))
	return session.URL, nil
}

// SessionPriceIDs lists the price ids bought in a checkout session.
// It implements bridge.PriceResolver.
func (c *Checkout) SessionPriceIDs(ctx context.Context, sessionID string) ([]string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}

	var priceIDs []string
	for item, err := range c.sessions.ListLineItems(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("failed to list line items for session %s: %w", sessionID, err)
		}
		if item != nil && item.Price != nil && item.Price.ID != "" {
			priceIDs = append(priceIDs, item.Price.ID)
		}
	}
	return priceIDs, nil
}
