package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/idhash"
	"solana-slot-sniper/internal/keylock"
	"solana-slot-sniper/internal/storage"
)

// Entry defaults
const (
	DefaultEntryUser       = "sniper"
	DefaultEntryCapital    = 100.0
	DefaultEntryAttempts   = 1
	DefaultEntryResetAfter = time.Hour
)

// PriceFunc returns the current fill price for entity. A zero price with a
// nil error means no price is known yet.
type PriceFunc func(ctx context.Context, entity string) (float64, error)

// EntryOptions configures Entries.
type EntryOptions struct {
	Trades    storage.TradeRecordStore // optional; nil skips trade records
	Positions *PositionBook            // optional; nil skips position tracking
	Lifecycle *Lifecycle               // optional; nil skips follow-up orders
	Executor  Executor                 // default: LogExecutor
	Prices    PriceFunc                // optional; nil records the window only
	Locks     *keylock.Controller      // default: a private controller

	UserID     string        // default "sniper"
	Capital    float64       // quote amount spent per entry, default 100
	Attempts   int           // per entity and reset period, default 1
	ResetAfter time.Duration // default 1h
	Timeout    time.Duration // default 30s

	Now    func() time.Time
	Logger *zerolog.Logger
}

// Entries turns slot arrivals into entries. Each entity gets a bounded
// number of attempts per reset period, serialized per entity.
//
// With a fill price the buy runs through the executor, then the position
// is opened and its follow-up legs are created. Without one only the
// execution window is recorded.
type Entries struct {
	trades     storage.TradeRecordStore
	positions  *PositionBook
	lifecycle  *Lifecycle
	exec       Executor
	prices     PriceFunc
	locks      *keylock.Controller
	user       string
	capital    float64
	attempts   int
	resetAfter time.Duration
	timeout    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEntries creates Entries.
func NewEntries(opts EntryOptions) *Entries {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	e := &Entries{
		trades:     opts.Trades,
		positions:  opts.Positions,
		lifecycle:  opts.Lifecycle,
		exec:       opts.Executor,
		prices:     opts.Prices,
		locks:      opts.Locks,
		user:       opts.UserID,
		capital:    opts.Capital,
		attempts:   opts.Attempts,
		resetAfter: opts.ResetAfter,
		timeout:    opts.Timeout,
		now:        opts.Now,
		logger:     logger.With().Str("component", "fire").Logger(),
	}
	if e.exec == nil {
		e.exec = LogExecutor{Logger: &logger}
	}
	if e.locks == nil {
		e.locks = keylock.NewController(keylock.Options{Logger: &logger})
	}
	if e.user == "" {
		e.user = DefaultEntryUser
	}
	if e.capital <= 0 {
		e.capital = DefaultEntryCapital
	}
	if e.attempts <= 0 {
		e.attempts = DefaultEntryAttempts
	}
	if e.resetAfter <= 0 {
		e.resetAfter = DefaultEntryResetAfter
	}
	if e.timeout <= 0 {
		e.timeout = DefaultExecTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// UserID reports the user entries are booked under.
func (e *Entries) UserID() string { return e.user }

// Fire handles one slot arrival. It has the shape of the scheduler's fire
// callback: failures are logged and recorded, never returned.
func (e *Entries) Fire(ctx context.Context, trig domain.Trigger, allowed bool) {
	log := e.logger.With().Str("entity", trig.Entity).Int64("slot", trig.Slot).Float64("score", trig.Score).Logger()
	if !allowed {
		log.Warn().Msg("slot reached, execution blocked by risk engine")
		e.record(ctx, trig, 0, 0, domain.TradeStatusFail, "risk blocked")
		return
	}
	if !e.locks.CanAttempt(trig.Entity, "snipe", e.attempts, e.resetAfter) {
		log.Warn().Msg("execution attempt throttled")
		return
	}

	_, err := e.locks.RunExclusive(ctx, trig.Entity, func(ctx context.Context) (any, error) {
		log.Info().Strs("bits", trig.MaskBits).Msg("execution window open")
		return nil, e.enter(ctx, trig, log)
	}, e.timeout)
	if err != nil {
		log.Error().Err(err).Msg("execution failed")
	}
}

// enter runs under the entity's lock.
func (e *Entries) enter(ctx context.Context, trig domain.Trigger, log zerolog.Logger) error {
	price, err := e.fillPrice(ctx, trig.Entity)
	if err != nil {
		log.Warn().Err(err).Msg("fill price unavailable")
	}
	if price <= 0 {
		e.record(ctx, trig, 0, 0, domain.TradeStatusTriggered, "slot arrival")
		return nil
	}

	qty := decimal.NewFromFloat(e.capital).Div(decimal.NewFromFloat(price)).Round(pricePlaces).InexactFloat64()
	if qty <= 0 {
		e.record(ctx, trig, price, 0, domain.TradeStatusFail, ErrInvalidEntry.Error())
		return fmt.Errorf("entry for %s: %w", trig.Entity, ErrInvalidEntry)
	}
	buy := &domain.PendingOrder{
		OrderID:      trig.TriggerID,
		UserID:       e.user,
		Entity:       trig.Entity,
		Kind:         domain.OrderKindBuy,
		TriggerPrice: price,
		Amount:       qty,
		CreatedAt:    trig.TriggeredAt,
		Status:       domain.OrderStatusPending,
		Reason:       "slot arrival",
	}
	if err := safeExecute(ctx, e.exec, buy, price); err != nil {
		e.record(ctx, trig, price, qty, domain.TradeStatusFail, err.Error())
		return fmt.Errorf("execute entry: %w", err)
	}
	e.record(ctx, trig, price, qty, domain.TradeStatusSuccess, "slot arrival")
	log.Info().Float64("price", price).Float64("qty", qty).Msg("entry executed")

	if e.positions != nil {
		if _, err := e.positions.Open(ctx, e.user, trig.Entity, price, qty, 0); err != nil {
			if !errors.Is(err, ErrPositionOpen) {
				return fmt.Errorf("open position: %w", err)
			}
			log.Debug().Msg("position already open")
		}
	}
	if e.lifecycle != nil {
		if _, err := e.lifecycle.OpenFollowUps(ctx, e.user, trig.Entity, price, qty); err != nil {
			return fmt.Errorf("open follow-ups: %w", err)
		}
	}
	return nil
}

func (e *Entries) fillPrice(ctx context.Context, entity string) (float64, error) {
	if e.prices == nil {
		return 0, nil
	}
	return e.prices(ctx, entity)
}

func (e *Entries) record(ctx context.Context, trig domain.Trigger, price, qty float64, status, reason string) {
	if e.trades == nil {
		return
	}
	now := e.now().UnixMilli()
	rec := &domain.TradeRecord{
		TradeID:   idhash.ComputeTradeID(e.user, trig.TriggerID, trig.Entity, domain.TradeActionBuy+":"+status, now),
		UserID:    e.user,
		OrderID:   trig.TriggerID,
		Action:    domain.TradeActionBuy,
		Entity:    trig.Entity,
		Amount:    qty,
		Price:     price,
		Status:    status,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := e.trades.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		e.logger.Warn().Err(err).Str("entity", trig.Entity).Msg("trade record not saved")
	}
}
