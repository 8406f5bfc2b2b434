package ingestion

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/probe"
	"solana-slot-sniper/internal/slotclock"
)

// Scheduler receives fired triggers together with the probe facts behind them.
type Scheduler interface {
	Schedule(ctx context.Context, trig domain.Trigger, res probe.Result)
}

// FireFunc is called on slot arrival with the pre-computed risk decision.
type FireFunc func(ctx context.Context, trig domain.Trigger, allowed bool)

// SlotSchedulerOptions configures a SlotScheduler.
type SlotSchedulerOptions struct {
	Clock        slotclock.Clock
	Risk         *slotclock.RiskEngine
	TargetOffset int64 // slots after the current one, default 1

	// Liquidity, when set, fills LaunchState.LiquidityUSD before risk analysis.
	Liquidity func(ctx context.Context, mint string) float64

	Wait   slotclock.WaitOptions
	OnFire FireFunc
	Logger *zerolog.Logger
}

// SlotScheduler runs pre-slot risk analysis for each trigger and fires it
// at the start of a later slot. A target that has already passed is
// skipped, never fired late.
type SlotScheduler struct {
	clock     slotclock.Clock
	risk      *slotclock.RiskEngine
	offset    int64
	liquidity func(ctx context.Context, mint string) float64
	wait      slotclock.WaitOptions
	onFire    FireFunc
	logger    zerolog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	missed int
}

// NewSlotScheduler creates a new SlotScheduler.
func NewSlotScheduler(opts SlotSchedulerOptions) *SlotScheduler {
	if opts.TargetOffset <= 0 {
		opts.TargetOffset = 1
	}
	if opts.Risk == nil {
		opts.Risk = slotclock.NewRiskEngine(0)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	if opts.Wait.Logger == nil {
		opts.Wait.Logger = &logger
	}
	return &SlotScheduler{
		clock:     opts.Clock,
		risk:      opts.Risk,
		offset:    opts.TargetOffset,
		liquidity: opts.Liquidity,
		wait:      opts.Wait,
		onFire:    opts.OnFire,
		logger:    logger,
	}
}

// Schedule implements Scheduler. It returns immediately; the wait runs in
// its own goroutine until the target slot or ctx cancellation.
func (s *SlotScheduler) Schedule(ctx context.Context, trig domain.Trigger, res probe.Result) {
	state := res.LaunchState()
	if s.liquidity != nil {
		state.LiquidityUSD = s.liquidity(ctx, trig.Entity)
	}
	graph := slotclock.PreSlotAnalysis(state, s.risk)
	logger := s.logger.With().Str("entity", trig.Entity).Logger()
	graph.Logger = &logger
	graph.OnFire = func(allowed bool) {
		if s.onFire != nil {
			s.onFire(ctx, trig, allowed)
		}
	}

	target := s.clock.CurrentSlot() + s.offset
	logger.Info().
		Int64("target_slot", target).
		Bool("allowed", graph.Allowed).
		Msg("trigger scheduled")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		arr, err := slotclock.WaitForSlot(ctx, s.clock, target, graph, s.wait)
		switch {
		case errors.Is(err, slotclock.ErrSlotPassed):
			s.mu.Lock()
			s.missed++
			s.mu.Unlock()
			logger.Warn().Err(err).Msg("target slot missed")
		case err != nil:
			logger.Debug().Err(err).Msg("scheduled wait cancelled")
		default:
			logger.Info().Int64("slot", arr.Slot).Int64("ms", arr.Ms).Msg("trigger fired")
		}
	}()
}

// Wait blocks until every scheduled wait has finished.
func (s *SlotScheduler) Wait() {
	s.wg.Wait()
}

// Missed returns how many targets had already passed.
func (s *SlotScheduler) Missed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missed
}

var _ Scheduler = (*SlotScheduler)(nil)
