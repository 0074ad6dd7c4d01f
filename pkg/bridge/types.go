package bridge

import (
	"encoding/json"
	"time"
)

// EventKind classifies a verified provider event for dispatch.
type EventKind string

const (
	// KindPurchaseCompleted is a finished checkout that should grant a role.
	KindPurchaseCompleted EventKind = "purchase_completed"
	// KindSubscriptionEnded is a terminated subscription whose grant should be reversed.
	KindSubscriptionEnded EventKind = "subscription_ended"
	// KindProductLifecycle covers product and price catalogue changes.
	KindProductLifecycle EventKind = "product_lifecycle"
	// KindUnhandled is any event type this bridge does not act on.
	KindUnhandled EventKind = "unhandled"
)

// Event is a verified, parsed webhook delivery.
// Fields beyond ID, Kind and Type are only populated for the kinds that carry them.
type Event struct {
	// ID is the provider event id (e.g., "evt_...")
	ID string

	// Kind is the dispatch class derived from Type
	Kind EventKind

	// Type is the provider event type (e.g., "checkout.session.completed")
	Type string

	// Created is when the provider created the event
	Created time.Time

	// SessionID is the checkout session id for purchase events
	SessionID string

	// SubscriptionID is the provider subscription id, if any
	SubscriptionID string

	// CustomerID is the provider customer id, if any
	CustomerID string

	// Metadata is the passthrough metadata set at checkout initiation
	Metadata map[string]string

	// PriceIDs are the price ids carried inline by the event. Checkout sessions
	// usually omit them and need a secondary line item lookup.
	PriceIDs []string

	// Raw is the event's data object as delivered
	Raw json.RawMessage
}

// LedgerKey returns the subscription identifier a purchase is recorded under.
// One-time checkouts have no subscription, so the session id stands in.
func (e *Event) LedgerKey() string {
	if e.SubscriptionID != "" {
		return e.SubscriptionID
	}
	return e.SessionID
}

// LedgerRow links an external subscription to the member it granted access to.
type LedgerRow struct {
	SubscriptionID string    `json:"subscription_id" firestore:"subscriptionId"`
	CustomerID     string    `json:"customer_id" firestore:"customerId"`
	MemberID       string    `json:"member_id" firestore:"memberId"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
}

// Community is the directory's view of a guild.
type Community struct {
	ID      string
	Name    string
	OwnerID string
}

// Member is the directory's view of a guild member.
type Member struct {
	ID      string
	RoleIDs []string
}

// HasRole reports whether the member currently holds roleID.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Role is an entitlement marker as realised by the directory.
type Role struct {
	ID       string
	Name     string
	Position int
	Managed  bool
}

// Authority describes what the acting agent may do in a community.
type Authority struct {
	// CanManageRoles is true when the agent holds manage-roles or administrator
	CanManageRoles bool

	// HighestPosition is the position of the agent's highest ranked role
	HighestPosition int
}

// Plan is a purchasable entitlement as reported to users.
type Plan struct {
	Name    string `json:"name"`
	PriceID string `json:"price_id"`
	RoleID  string `json:"role_id"`
}
