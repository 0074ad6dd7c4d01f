// Package sqlite provides a single-file SQLite implementation of the bridge.Ledger
// interface, for deployments without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscription_ledger (
	subscription_id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL DEFAULT '',
	member_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Storage implements bridge.Ledger using SQLite
type Storage struct {
	db *sql.DB
}

// New opens (or creates) the ledger database at path.
func New(path string) (*Storage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(fmt.Errorf("init ledger schema: %w", err), closeErr)
		}
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Record implements bridge.Ledger
func (s *Storage) Record(ctx context.Context, row *bridge.LedgerRow) error {
	if row == nil || row.SubscriptionID == "" {
		return fmt.Errorf("%w: invalid ledger row", bridge.ErrPersistence)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscription_ledger (subscription_id, customer_id, member_id, created_at)
		VALUES (?, ?, ?, ?)`,
		row.SubscriptionID, row.CustomerID, row.MemberID, row.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert ledger row: %w", bridge.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: insert ledger row: %w", bridge.ErrPersistence, err)
	}
	if n == 0 {
		return bridge.ErrLedgerRowExists
	}
	return nil
}

// FindBySubscriptionID implements bridge.Ledger
func (s *Storage) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*bridge.LedgerRow, error) {
	var (
		row       bridge.LedgerRow
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT subscription_id, customer_id, member_id, created_at
		FROM subscription_ledger WHERE subscription_id = ?`,
		subscriptionID,
	).Scan(&row.SubscriptionID, &row.CustomerID, &row.MemberID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bridge.ErrLedgerRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger row: %w", bridge.ErrPersistence, err)
	}
	row.CreatedAt = time.Unix(0, createdAt).UTC()
	return &row, nil
}

// Delete implements bridge.Ledger
func (s *Storage) Delete(ctx context.Context, subscriptionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscription_ledger WHERE subscription_id = ?`, subscriptionID); err != nil {
		return fmt.Errorf("%w: delete ledger row: %w", bridge.ErrPersistence, err)
	}
	return nil
}
