// Package memory provides an in-memory implementation of the bridge.Ledger interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Storage implements bridge.Ledger using an in-memory map
type Storage struct {
	mu   sync.RWMutex
	rows map[string]*bridge.LedgerRow
}

// New creates a new in-memory ledger
func New() *Storage {
	return &Storage{
		rows: make(map[string]*bridge.LedgerRow),
	}
}

// Record implements bridge.Ledger
func (s *Storage) Record(_ context.Context, row *bridge.LedgerRow) error {
	if row == nil || row.SubscriptionID == "" {
		return fmt.Errorf("%w: invalid ledger row", bridge.ErrPersistence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[row.SubscriptionID]; ok {
		return bridge.ErrLedgerRowExists
	}

	// Store a copy to prevent external mutations
	rowCopy := *row
	s.rows[row.SubscriptionID] = &rowCopy
	return nil
}

// FindBySubscriptionID implements bridge.Ledger
func (s *Storage) FindBySubscriptionID(_ context.Context, subscriptionID string) (*bridge.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[subscriptionID]
	if !ok {
		return nil, bridge.ErrLedgerRowNotFound
	}

	rowCopy := *row
	return &rowCopy, nil
}

// Delete implements bridge.Ledger
func (s *Storage) Delete(_ context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, subscriptionID)
	return nil
}

// Len returns the number of live rows.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Clear removes all rows (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]*bridge.LedgerRow)
}
