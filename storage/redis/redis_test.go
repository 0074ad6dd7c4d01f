package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
	"github.com/mihaimyh/rolebridge/storage/ledgertest"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	s, err := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{})
	require.NoError(t, err)
	assert.Equal(t, "rolebridge:ledger:sub_1", s.key("sub_1"))
}

func TestStorage_LedgerConformance(t *testing.T) {
	s, err := New(setupTestRedis(t), DefaultConfig())
	require.NoError(t, err)
	ledgertest.Run(t, s, "redis")
}

func TestStorage_RowTTL(t *testing.T) {
	client := setupTestRedis(t)
	s, err := New(client, Config{KeyPrefix: "ttl:", RowTTL: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, &bridge.LedgerRow{SubscriptionID: "sub_ttl", MemberID: "1", CreatedAt: time.Now()}))

	ttl, err := client.TTL(ctx, "ttl:sub_ttl").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStorage_UnreachableIsPersistenceError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	s, err := New(client, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	assert.ErrorIs(t, s.Record(ctx, &bridge.LedgerRow{SubscriptionID: "sub_1", MemberID: "1"}), bridge.ErrPersistence)
	_, err = s.FindBySubscriptionID(ctx, "sub_1")
	assert.ErrorIs(t, err, bridge.ErrPersistence)
	assert.ErrorIs(t, s.Delete(ctx, "sub_1"), bridge.ErrPersistence)
}
