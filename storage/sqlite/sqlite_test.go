package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
	"github.com/mihaimyh/rolebridge/storage/ledgertest"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "ledger.db")
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestStorage_LedgerConformance(t *testing.T) {
	s, _ := newTestStorage(t)
	ledgertest.Run(t, s, "sqlite")
}

func TestStorage_SurvivesReopen(t *testing.T) {
	s, path := newTestStorage(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

	require.NoError(t, s.Record(ctx, &bridge.LedgerRow{SubscriptionID: "sub_1", MemberID: "42", CreatedAt: created}))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	row, err := reopened.FindBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "42", row.MemberID)
	assert.Equal(t, created, row.CreatedAt)
}

func TestStorage_ClosedDBIsPersistenceError(t *testing.T) {
	s, _ := newTestStorage(t)
	require.NoError(t, s.Close())

	err := s.Record(context.Background(), &bridge.LedgerRow{SubscriptionID: "sub_1", MemberID: "1"})
	assert.ErrorIs(t, err, bridge.ErrPersistence)
}
