package main

import (
	"context"
	"fmt"

	gcfirestore "cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mihaimyh/rolebridge/pkg/bridge"
	"github.com/mihaimyh/rolebridge/pkg/config"
	firestorestore "github.com/mihaimyh/rolebridge/storage/firestore"
	"github.com/mihaimyh/rolebridge/storage/memory"
	"github.com/mihaimyh/rolebridge/storage/postgres"
	redisstore "github.com/mihaimyh/rolebridge/storage/redis"
	"github.com/mihaimyh/rolebridge/storage/sqlite"
)

// openLedger builds the configured ledger backend and a func releasing it.
func openLedger(ctx context.Context, cfg *config.Config) (bridge.Ledger, func() error, error) {
	noop := func() error { return nil }

	switch cfg.LedgerBackend {
	case config.BackendMemory, "":
		return memory.New(), noop, nil

	case config.BackendPostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.ConnectionString = cfg.PostgresDSN
		s, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s, err := redisstore.New(client, redisstore.DefaultConfig())
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return s, s.Close, nil

	case config.BackendFirestore:
		client, err := gcfirestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create firestore client: %w", err)
		}
		s, err := firestorestore.New(client, firestorestore.Config{})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return s, s.Close, nil

	case config.BackendSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	}

	return nil, noop, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
}
