package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/config"
	"solana-slot-sniper/internal/storage"
	chstore "solana-slot-sniper/internal/storage/clickhouse"
	"solana-slot-sniper/internal/storage/memory"
	pgstore "solana-slot-sniper/internal/storage/postgres"
)

// stores bundles the storage backends selected by config.
type stores struct {
	orders    storage.PendingOrderStore
	trades    storage.TradeRecordStore
	positions storage.PositionStore
	triggers  storage.TriggerStore
}

// openStores connects the configured backends. Postgres holds orders,
// trades and positions; triggers go to ClickHouse when a DSN is set and
// to memory otherwise.
func openStores(ctx context.Context, cfg config.StorageConfig, logger *zerolog.Logger) (*stores, func(), error) {
	s := &stores{
		orders:    memory.NewPendingOrderStore(),
		trades:    memory.NewTradeRecordStore(),
		positions: memory.NewPositionStore(),
		triggers:  memory.NewTriggerStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Backend == config.BackendPostgres {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		s.orders = pgstore.NewPendingOrderStore(pool)
		s.trades = pgstore.NewTradeRecordStore(pool)
		s.positions = pgstore.NewPositionStore(pool)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		s.triggers = chstore.NewTriggerStore(conn)
	}

	logger.Info().
		Str("backend", cfg.Backend).
		Bool("clickhouse_triggers", cfg.ClickHouseDSN != "").
		Msg("storage ready")
	return s, cleanup, nil
}
