// Package firestore provides a Firestore implementation of the bridge.Ledger interface.
// Rows are stored one document per subscription id and written with Create,
// which fails with AlreadyExists when the document is present.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Storage implements bridge.Ledger using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection is the Firestore collection for ledger rows
	// Default: "subscription_ledger"
	Collection string
}

// New creates a new Firestore ledger
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "subscription_ledger"
	}
	return &Storage{client: client, collection: config.Collection}, nil
}

// Close closes the underlying client
func (s *Storage) Close() error {
	return s.client.Close()
}

// Record implements bridge.Ledger
func (s *Storage) Record(ctx context.Context, row *bridge.LedgerRow) error {
	if row == nil || row.SubscriptionID == "" {
		return fmt.Errorf("%w: invalid ledger row", bridge.ErrPersistence)
	}

	_, err := s.client.Collection(s.collection).Doc(row.SubscriptionID).Create(ctx, row)
	if status.Code(err) == codes.AlreadyExists {
		return bridge.ErrLedgerRowExists
	}
	if err != nil {
		return fmt.Errorf("%w: failed to create ledger row: %w", bridge.ErrPersistence, err)
	}
	return nil
}

// FindBySubscriptionID implements bridge.Ledger
func (s *Storage) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*bridge.LedgerRow, error) {
	snap, err := s.client.Collection(s.collection).Doc(subscriptionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, bridge.ErrLedgerRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get ledger row: %w", bridge.ErrPersistence, err)
	}
	if !snap.Exists() {
		return nil, bridge.ErrLedgerRowNotFound
	}

	var row bridge.LedgerRow
	if err := snap.DataTo(&row); err != nil {
		return nil, fmt.Errorf("%w: failed to decode ledger row: %w", bridge.ErrPersistence, err)
	}
	if row.SubscriptionID == "" {
		row.SubscriptionID = subscriptionID
	}
	return &row, nil
}

// Delete implements bridge.Ledger
func (s *Storage) Delete(ctx context.Context, subscriptionID string) error {
	_, err := s.client.Collection(s.collection).Doc(subscriptionID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: failed to delete ledger row: %w", bridge.ErrPersistence, err)
	}
	return nil
}
