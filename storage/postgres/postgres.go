// Package postgres provides a PostgreSQL implementation of the bridge.Ledger interface.
// Rows are inserted with ON CONFLICT DO NOTHING so concurrent deliveries of the
// same purchase record at most one row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Schema creates the ledger table. New applies it when Config.AutoMigrate is set.
const Schema = `CREATE TABLE IF NOT EXISTS subscription_ledger (
	subscription_id TEXT PRIMARY KEY,
	customer_id     TEXT NOT NULL DEFAULT '',
	member_id       TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
)`

// Storage implements bridge.Ledger using PostgreSQL
type Storage struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate creates the ledger table if it does not exist
	AutoMigrate bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// New connects to PostgreSQL and verifies the connection
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if _, err := pool.Exec(ctx, Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create ledger table: %w", err)
		}
	}

	return &Storage{pool: pool}, nil
}

// Close closes the connection pool
func (s *Storage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Record implements bridge.Ledger
func (s *Storage) Record(ctx context.Context, row *bridge.LedgerRow) error {
	if row == nil || row.SubscriptionID == "" {
		return fmt.Errorf("%w: invalid ledger row", bridge.ErrPersistence)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO subscription_ledger (subscription_id, customer_id, member_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subscription_id) DO NOTHING`,
		row.SubscriptionID, row.CustomerID, row.MemberID, row.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert ledger row: %w", bridge.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return bridge.ErrLedgerRowExists
	}
	return nil
}

// FindBySubscriptionID implements bridge.Ledger
func (s *Storage) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*bridge.LedgerRow, error) {
	var row bridge.LedgerRow
	err := s.pool.QueryRow(ctx,
		`SELECT subscription_id, customer_id, member_id, created_at
			FROM subscription_ledger WHERE subscription_id = $1`,
		subscriptionID).Scan(&row.SubscriptionID, &row.CustomerID, &row.MemberID, &row.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bridge.ErrLedgerRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger row: %w", bridge.ErrPersistence, err)
	}
	return &row, nil
}

// Delete implements bridge.Ledger
func (s *Storage) Delete(ctx context.Context, subscriptionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscription_ledger WHERE subscription_id = $1`, subscriptionID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete ledger row: %w", bridge.ErrPersistence, err)
	}
	return nil
}
