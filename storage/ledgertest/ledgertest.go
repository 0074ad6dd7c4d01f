// Package ledgertest holds the behaviour every bridge.Ledger backend must share.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
)

// Run exercises ledger with unique subscription ids prefixed by prefix, so
// backends sharing a database across runs do not collide.
func Run(t *testing.T, ledger bridge.Ledger, prefix string) {
	t.Helper()
	ctx := context.Background()
	id := func(name string) string { return fmt.Sprintf("%s_%s_%d", prefix, name, time.Now().UnixNano()) }

	t.Run("record then find", func(t *testing.T) {
		row := &bridge.LedgerRow{
			SubscriptionID: id("sub"),
			CustomerID:     "cus_1",
			MemberID:       "42",
			CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, ledger.Record(ctx, row))

		got, err := ledger.FindBySubscriptionID(ctx, row.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, row.SubscriptionID, got.SubscriptionID)
		assert.Equal(t, row.CustomerID, got.CustomerID)
		assert.Equal(t, row.MemberID, got.MemberID)
		assert.True(t, row.CreatedAt.Equal(got.CreatedAt), "created_at: want %s got %s", row.CreatedAt, got.CreatedAt)
	})

	t.Run("missing row", func(t *testing.T) {
		_, err := ledger.FindBySubscriptionID(ctx, id("absent"))
		assert.ErrorIs(t, err, bridge.ErrLedgerRowNotFound)
	})

	t.Run("record is insert if absent", func(t *testing.T) {
		subID := id("dup")
		require.NoError(t, ledger.Record(ctx, &bridge.LedgerRow{SubscriptionID: subID, MemberID: "1", CreatedAt: time.Now()}))

		err := ledger.Record(ctx, &bridge.LedgerRow{SubscriptionID: subID, MemberID: "2", CreatedAt: time.Now()})
		assert.ErrorIs(t, err, bridge.ErrLedgerRowExists)

		got, err := ledger.FindBySubscriptionID(ctx, subID)
		require.NoError(t, err)
		assert.Equal(t, "1", got.MemberID, "first writer wins")
	})

	t.Run("delete", func(t *testing.T) {
		subID := id("del")
		require.NoError(t, ledger.Record(ctx, &bridge.LedgerRow{SubscriptionID: subID, MemberID: "1", CreatedAt: time.Now()}))
		require.NoError(t, ledger.Delete(ctx, subID))

		_, err := ledger.FindBySubscriptionID(ctx, subID)
		assert.ErrorIs(t, err, bridge.ErrLedgerRowNotFound)

		assert.NoError(t, ledger.Delete(ctx, subID), "deleting a missing row is not an error")
	})

	t.Run("invalid row", func(t *testing.T) {
		assert.ErrorIs(t, ledger.Record(ctx, nil), bridge.ErrPersistence)
		assert.ErrorIs(t, ledger.Record(ctx, &bridge.LedgerRow{MemberID: "1"}), bridge.ErrPersistence)
	})

	t.Run("concurrent record", func(t *testing.T) {
		subID := id("race")
		const writers = 10

		var wg sync.WaitGroup
		results := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results <- ledger.Record(ctx, &bridge.LedgerRow{
					SubscriptionID: subID,
					MemberID:       fmt.Sprint(i),
					CreatedAt:      time.Now(),
				})
			}(i)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, bridge.ErrLedgerRowExists)
		}
		assert.Equal(t, 1, wins)
	})
}
