package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"solana-slot-sniper/internal/config"
	"solana-slot-sniper/internal/keylock"
	"solana-slot-sniper/internal/monitor"
	"solana-slot-sniper/internal/orders"
	"solana-slot-sniper/internal/strategy"
)

func (a *app) lifecycle(st *stores, locks *keylock.Controller, logger *zerolog.Logger) *orders.Lifecycle {
	oc := a.cfg.Orders
	return orders.NewLifecycle(orders.Options{
		Store:                st.orders,
		Trades:               st.trades,
		Locks:                locks,
		FollowUp:             oc.FollowUpConfig,
		AutoExecute:          orders.Bool(oc.AutoExecute),
		KeepPendingOnFailure: orders.Bool(oc.KeepPendingOnFailure),
		MaxOrdersPerUser:     oc.MaxPerUser,
		ExecTimeout:          oc.ExecTimeout,
		Logger:               logger,
	})
}

func (a *app) redisPrices(ctx context.Context) (*monitor.RedisPriceSource, func(), error) {
	mc := a.cfg.Monitor
	rdb, err := monitor.DialRedis(ctx, mc.RedisAddr, mc.RedisPassword, mc.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return monitor.NewRedisPriceSource(rdb, mc.RedisPrefix), func() { _ = rdb.Close() }, nil
}

func monitorCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Settle pending orders against Redis prices and keep follow-ups in place",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger("monitor")

			st, closeStores, err := openStores(ctx, a.cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer closeStores()

			prices, closeRedis, err := a.redisPrices(ctx)
			if err != nil {
				return err
			}
			defer closeRedis()

			locks := keylock.NewController(keylock.Options{Logger: logger})
			m := monitor.New(monitor.Options{
				Users:         monitor.StoreUserSource{Orders: st.orders, Positions: st.positions},
				Prices:        prices,
				Lifecycle:     a.lifecycle(st, locks, logger),
				Positions:     orders.NewPositionBook(st.positions, logger),
				Executor:      orders.LogExecutor{Logger: logger},
				RepeatOnEntry: a.cfg.Orders.RepeatOnEntry,
				Interval:      a.cfg.Monitor.Interval,
				MaxConcurrent: a.cfg.Monitor.MaxConcurrent,
				Logger:        logger,
			})

			if once {
				report, err := m.RunOnce(ctx)
				logger.Info().Interface("report", report).Msg("monitor pass complete")
				return err
			}

			if a.configPath != "" {
				if _, err := config.Watch(a.configPath, func(c *config.Config) {
					m.SetInterval(c.Monitor.Interval)
				}, logger); err != nil {
					logger.Warn().Err(err).Msg("config hot reload disabled")
				}
			}
			if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func analyzeCmd(a *app) *cobra.Command {
	var (
		userID, entity, historyPath string
		balance                     float64
		followUps                   bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Evaluate the multi-timeframe entry strategy for one user and entity",
		Long: "Reads price history as JSON {\"5m\": [...], \"15m\": [...], ...}, records the resulting\n" +
			"entry or exit in the position book and prints the decision.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger("analyze")

			raw, err := os.ReadFile(historyPath)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			var history map[string][]float64
			if err := json.Unmarshal(raw, &history); err != nil {
				return fmt.Errorf("parse history: %w", err)
			}

			st, closeStores, err := openStores(ctx, a.cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer closeStores()

			book := orders.NewPositionBook(st.positions, logger)
			d, err := strategy.NewAnalyzer(book, a.cfg.Strategy, logger).Analyze(ctx, userID, entity, balance, history)
			if err != nil {
				return err
			}

			if followUps && (d.Action == strategy.ActionBuy || d.Action == strategy.ActionReinvest) {
				lc := a.lifecycle(st, keylock.NewController(keylock.Options{Logger: logger}), logger)
				legs, err := lc.OpenFollowUps(ctx, userID, entity, d.Price, d.Amount/d.Price)
				if err != nil {
					return fmt.Errorf("open follow-ups: %w", err)
				}
				logger.Info().Int("orders", len(legs)).Msg("follow-up orders opened")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "user key")
	f.StringVar(&entity, "entity", "", "mint address")
	f.StringVar(&historyPath, "history", "", "JSON price history by timeframe")
	f.Float64Var(&balance, "balance", 0, "spendable balance in quote currency")
	f.BoolVar(&followUps, "follow-ups", true, "open follow-up orders after an entry")
	for _, name := range []string{"user", "entity", "history"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// simTrader fills ladder trades without touching the chain.
type simTrader struct {
	logger *zerolog.Logger
}

func (t simTrader) Buy(_ context.Context, entity string, amount float64) (string, error) {
	id := uuid.NewString()
	t.logger.Info().Str("entity", entity).Float64("amount", amount).Str("tx", id).Msg("simulated buy")
	return id, nil
}

func (t simTrader) Sell(_ context.Context, entity string, amount float64) (string, error) {
	id := uuid.NewString()
	t.logger.Info().Str("entity", entity).Float64("amount", amount).Str("tx", id).Msg("simulated sell")
	return id, nil
}

func ladderCmd(a *app) *cobra.Command {
	var (
		userID, settingsPath string
		once                 bool
	)
	cmd := &cobra.Command{
		Use:   "ladder",
		Short: "Work tokens through staged take-profits using Redis prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.logger("ladder")

			raw, err := os.ReadFile(settingsPath)
			if err != nil {
				return fmt.Errorf("read ladder settings: %w", err)
			}
			var settings strategy.LadderSettings
			if err := yaml.Unmarshal(raw, &settings); err != nil {
				return fmt.Errorf("parse ladder settings: %w", err)
			}
			if len(settings.Tokens) > strategy.MaxLadderTokens {
				return strategy.ErrTooManyTokens
			}

			st, closeStores, err := openStores(ctx, a.cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer closeStores()

			prices, closeRedis, err := a.redisPrices(ctx)
			if err != nil {
				return err
			}
			defer closeRedis()

			ladder := strategy.NewLadder(strategy.LadderOptions{
				Locks:  keylock.NewController(keylock.Options{Logger: logger}),
				Trades: st.trades,
				Logger: logger,
			})
			price := func(ctx context.Context, entity string) (float64, error) {
				snap, err := prices.Prices(ctx, userID)
				if err != nil {
					return 0, err
				}
				return snap[entity], nil
			}
			trader := simTrader{logger: logger}

			ticker := time.NewTicker(a.cfg.Monitor.Interval)
			defer ticker.Stop()
			for {
				if err := ladder.Run(ctx, userID, &settings, price, trader); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				if once {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(settings)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "user key")
	f.StringVar(&settingsPath, "settings", "", "YAML ladder settings")
	f.BoolVar(&once, "once", false, "run a single pass and print the ladder state")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("settings")
	return cmd
}
