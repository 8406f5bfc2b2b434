package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"solana-slot-sniper/internal/config"
	"solana-slot-sniper/internal/ingestion"
	"solana-slot-sniper/internal/keylock"
	"solana-slot-sniper/internal/ledger"
	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/orders"
	"solana-slot-sniper/internal/probe"
	"solana-slot-sniper/internal/readiness"
	"solana-slot-sniper/internal/slotclock"
	"solana-slot-sniper/internal/solana"
)

const shutdownGrace = 5 * time.Second

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest live logs, score readiness and fire at slot boundaries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger("run")

	st, closeStores, err := openStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	rpc := solana.NewHTTPClient(cfg.RPC.HTTP,
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithMaxRetries(cfg.RPC.Retries),
		solana.WithLogger(logger),
	)
	guarded := probe.NewGuardedRPC(rpc, probe.GuardOptions{
		Name:   "rpc",
		RPS:    cfg.RPC.RPS,
		Burst:  cfg.RPC.Burst,
		Logger: logger,
	})
	prober := probe.NewProber(probe.Options{
		RPC:    guarded,
		Window: cfg.Ingest.ProbeWindow,
		Logger: logger,
	})

	baseSlot, err := rpc.GetSlot(ctx)
	if err != nil {
		return fmt.Errorf("get current slot: %w", err)
	}
	clock := slotclock.NewSlotClock(baseSlot, slotclock.WithSlotDuration(cfg.Scheduler.SlotDuration()))
	logger.Info().Int64("base_slot", baseSlot).Msg("slot clock anchored")

	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = logger
	ws, err := solana.NewWSClient(ctx, cfg.RPC.WS, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	engine := ledger.NewEngine(ledger.Options{
		WindowSlots:      cfg.Ledger.Window,
		DensityThreshold: cfg.Ledger.Density,
		AlignmentSpan:    cfg.Ledger.Alignment,
		MaxFreshMints:    cfg.Ledger.MaxFreshMints,
		Logger:           logger,
	})
	watcher := readiness.NewWatcher(readiness.WatcherOptions{
		Signals:       engine,
		Threshold:     cfg.Readiness.Threshold,
		MinLedgerBits: cfg.Readiness.MinLedgerBits,
		Logger:        logger,
	})

	entries, closeEntries := a.entries(ctx, st, logger)
	defer closeEntries()
	scheduler := ingestion.NewSlotScheduler(ingestion.SlotSchedulerOptions{
		Clock:        clock,
		Risk:         slotclock.NewRiskEngine(cfg.Risk.MinLiquidityUSD),
		TargetOffset: cfg.Scheduler.TargetOffset,
		Wait: slotclock.WaitOptions{
			TriggerWindow: cfg.Scheduler.TriggerWindow(),
			PollInterval:  cfg.Scheduler.PollInterval(),
			Logger:        logger,
		},
		OnFire: entries.Fire,
		Logger: logger,
	})

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source: ingestion.NewWSEventSource(ws, ingestion.WSOptions{
			Programs:      cfg.RPC.Programs,
			MaxFreshMints: cfg.Ledger.MaxFreshMints,
			Logger:        logger,
		}),
		Engine:        engine,
		Watcher:       watcher,
		Prober:        prober,
		Triggers:      st.triggers,
		Scheduler:     scheduler,
		ProbeTTL:      cfg.Ingest.ProbeTTL,
		ProbeWorkers:  cfg.Ingest.ProbeWorkers,
		SlotLagWindow: cfg.Ingest.SlotLag,
		Logger:        logger,
	})

	if a.configPath != "" {
		if _, err := config.Watch(a.configPath, func(c *config.Config) {
			watcher.SetThreshold(c.Readiness.Threshold)
		}, logger); err != nil {
			logger.Warn().Err(err).Msg("config hot reload disabled")
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           statusRouter(runner),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		err := runner.Run(gctx)
		scheduler.Wait()
		logger.Info().
			Interface("stats", runner.Stats()).
			Int("missed_slots", scheduler.Missed()).
			Msg("runner stopped")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil {
			// source closed: stop the http server too
			return errors.New("event source closed")
		}
		return err
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// statusRouter serves metrics, liveness and per-entity readiness.
func statusRouter(runner *ingestion.Runner) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": runner.Stats()})
	}).Methods(http.MethodGet)
	r.HandleFunc("/entities/{mint}", func(w http.ResponseWriter, req *http.Request) {
		mint := mux.Vars(req)["mint"]
		if !ledger.IsAddress(mint) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mint address"})
			return
		}
		st, ok := runner.EntityStatus(mint)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not tracked"})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// entries builds the slot-arrival handler. Fill prices come from the
// sniper user's Redis price hash; when Redis is unreachable arrivals are
// recorded without executing.
func (a *app) entries(ctx context.Context, st *stores, logger *zerolog.Logger) (*orders.Entries, func()) {
	locks := keylock.NewController(keylock.Options{Logger: logger})
	opts := orders.EntryOptions{
		Trades:    st.trades,
		Positions: orders.NewPositionBook(st.positions, logger),
		Lifecycle: a.lifecycle(st, locks, logger),
		Executor:  orders.LogExecutor{Logger: logger},
		Locks:     locks,
		UserID:    orders.DefaultEntryUser,
		Capital:   a.cfg.Orders.EntryCapital,
		Timeout:   a.cfg.Orders.ExecTimeout,
		Logger:    logger,
	}
	closeFn := func() {}
	prices, closeRedis, err := a.redisPrices(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("no fill prices, slot arrivals will only be recorded")
	} else {
		closeFn = closeRedis
		opts.Prices = func(ctx context.Context, entity string) (float64, error) {
			snapshot, err := prices.Prices(ctx, orders.DefaultEntryUser)
			if err != nil {
				return 0, err
			}
			return snapshot[entity], nil
		}
	}
	return orders.NewEntries(opts), closeFn
}
