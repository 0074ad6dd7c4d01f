package api

import "github.com/mihaimyh/rolebridge/pkg/bridge"

// WebhookResponse acknowledges a verified delivery.
type WebhookResponse struct {
	Received bool          `json:"received"`
	Status   bridge.Status `json:"status"`
	Reason   string        `json:"reason,omitempty"`
}

// PaymentLinkResponse carries a hosted checkout URL.
type PaymentLinkResponse struct {
	URL string `json:"url"`
}

// PlansResponse lists the purchasable plans.
type PlansResponse struct {
	Plans []bridge.Plan `json:"plans"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
