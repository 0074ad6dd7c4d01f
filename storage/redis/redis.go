// Package redis provides a Redis implementation of the bridge.Ledger interface.
// Each row is a JSON value written with SETNX, so the first writer wins.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Storage implements bridge.Ledger using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "rolebridge:ledger:")
	KeyPrefix string

	// RowTTL expires rows that were never deleted (0 = no expiration)
	RowTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "rolebridge:ledger:",
	}
}

// New creates a new Redis ledger
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Storage{client: client, config: config}, nil
}

// Close closes the underlying client
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) key(subscriptionID string) string {
	return s.config.KeyPrefix + subscriptionID
}

// Record implements bridge.Ledger
func (s *Storage) Record(ctx context.Context, row *bridge.LedgerRow) error {
	if row == nil || row.SubscriptionID == "" {
		return fmt.Errorf("%w: invalid ledger row", bridge.ErrPersistence)
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: failed to encode ledger row: %w", bridge.ErrPersistence, err)
	}

	ok, err := s.client.SetNX(ctx, s.key(row.SubscriptionID), data, s.config.RowTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to write ledger row: %w", bridge.ErrPersistence, err)
	}
	if !ok {
		return bridge.ErrLedgerRowExists
	}
	return nil
}

// FindBySubscriptionID implements bridge.Ledger
func (s *Storage) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*bridge.LedgerRow, error) {
	data, err := s.client.Get(ctx, s.key(subscriptionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, bridge.ErrLedgerRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger row: %w", bridge.ErrPersistence, err)
	}

	var row bridge.LedgerRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("%w: failed to decode ledger row: %w", bridge.ErrPersistence, err)
	}
	return &row, nil
}

// Delete implements bridge.Ledger
func (s *Storage) Delete(ctx context.Context, subscriptionID string) error {
	if err := s.client.Del(ctx, s.key(subscriptionID)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete ledger row: %w", bridge.ErrPersistence, err)
	}
	return nil
}
