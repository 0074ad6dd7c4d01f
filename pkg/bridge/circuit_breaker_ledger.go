package bridge

import (
	"context"
	"fmt"
)

// CircuitBreakerLedger wraps a Ledger with circuit breaker protection.
// While the circuit is open calls fail fast with ErrPersistence.
type CircuitBreakerLedger struct {
	ledger Ledger
	cb     CircuitBreaker
}

// NewCircuitBreakerLedger creates a new ledger wrapper with circuit breaker.
func NewCircuitBreakerLedger(ledger Ledger, cb CircuitBreaker) *CircuitBreakerLedger {
	return &CircuitBreakerLedger{
		ledger: ledger,
		cb:     cb,
	}
}

func (l *CircuitBreakerLedger) Record(ctx context.Context, row *LedgerRow) error {
	return wrapOpen(l.cb.Execute(ctx, func() error {
		return l.ledger.Record(ctx, row)
	}))
}

func (l *CircuitBreakerLedger) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*LedgerRow, error) {
	var row *LedgerRow
	err := l.cb.Execute(ctx, func() error {
		var e error
		row, e = l.ledger.FindBySubscriptionID(ctx, subscriptionID)
		return e
	})
	return row, wrapOpen(err)
}

func (l *CircuitBreakerLedger) Delete(ctx context.Context, subscriptionID string) error {
	return wrapOpen(l.cb.Execute(ctx, func() error {
		return l.ledger.Delete(ctx, subscriptionID)
	}))
}

func wrapOpen(err error) error {
	if err == ErrCircuitOpen {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return err
}
