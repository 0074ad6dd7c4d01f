package bridge

import "context"

// Ledger persists which member each subscription granted access to.
// Consistency under concurrent writers is left to the backing store.
type Ledger interface {
	// Record inserts row unless a row with the same SubscriptionID exists,
	// in which case it returns ErrLedgerRowExists.
	Record(ctx context.Context, row *LedgerRow) error

	// FindBySubscriptionID returns the live row for subscriptionID.
	// Returns ErrLedgerRowNotFound if there is none.
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*LedgerRow, error)

	// Delete removes the row for subscriptionID. Deleting a missing row is not an error.
	Delete(ctx context.Context, subscriptionID string) error
}
