package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/idhash"
	"solana-slot-sniper/internal/keylock"
	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/storage"
)

// Lifecycle defaults
const (
	DefaultMaxOrdersPerUser = 50
	DefaultExecTimeout      = 30 * time.Second
)

var (
	// ErrInvalidEntry is returned when an entry has no usable price or quantity.
	ErrInvalidEntry = errors.New("invalid entry price or quantity")

	// ErrNoExecutor is returned when auto-execution is on and no executor is given.
	ErrNoExecutor = errors.New("no executor")

	errNotPending = errors.New("order no longer pending")
)

// Options configures a Lifecycle.
type Options struct {
	Store  storage.PendingOrderStore
	Trades storage.TradeRecordStore // optional; nil skips trade records
	Locks  *keylock.Controller      // default: a private controller

	FollowUp FollowUpConfig

	// AutoExecute runs matched orders through the executor. When false,
	// matched orders are only marked triggered. Default: true.
	AutoExecute *bool

	// KeepPendingOnFailure leaves a failed order pending for the next pass;
	// otherwise it is cancelled. Default: true.
	KeepPendingOnFailure *bool

	MaxOrdersPerUser int           // default 50
	ExecTimeout      time.Duration // default 30s

	Now    func() time.Time
	Logger *zerolog.Logger
}

// Bool returns a pointer to v, for the optional flags in Options.
func Bool(v bool) *bool { return &v }

// Lifecycle creates, matches and settles pending orders.
type Lifecycle struct {
	store       storage.PendingOrderStore
	trades      storage.TradeRecordStore
	locks       *keylock.Controller
	followUp    FollowUpConfig
	auto        bool
	keepPending bool
	maxOrders   int
	execTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewLifecycle creates a new Lifecycle.
func NewLifecycle(opts Options) *Lifecycle {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	locks := opts.Locks
	if locks == nil {
		locks = keylock.NewController(keylock.Options{Logger: &logger})
	}
	auto := true
	if opts.AutoExecute != nil {
		auto = *opts.AutoExecute
	}
	keepPending := true
	if opts.KeepPendingOnFailure != nil {
		keepPending = *opts.KeepPendingOnFailure
	}
	maxOrders := opts.MaxOrdersPerUser
	if maxOrders <= 0 {
		maxOrders = DefaultMaxOrdersPerUser
	}
	execTimeout := opts.ExecTimeout
	if execTimeout <= 0 {
		execTimeout = DefaultExecTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Lifecycle{
		store:       opts.Store,
		trades:      opts.Trades,
		locks:       locks,
		followUp:    opts.FollowUp.withDefaults(),
		auto:        auto,
		keepPending: keepPending,
		maxOrders:   maxOrders,
		execTimeout: execTimeout,
		now:         now,
		logger:      logger.With().Str("component", "orders").Logger(),
	}
}

// AutoExecute reports whether matched orders are executed.
func (l *Lifecycle) AutoExecute() bool { return l.auto }

// OpenFollowUps creates the follow-up legs for an entry unless the user
// already holds a pending order on entity, in which case it returns nil.
// The per-user cap is enforced afterwards by dropping the oldest orders.
//
// OpenFollowUps takes the user's lock; it must not be called from a task
// already holding it.
func (l *Lifecycle) OpenFollowUps(ctx context.Context, userID, entity string, entryPrice, qty float64) ([]*domain.PendingOrder, error) {
	if userID == "" || entity == "" {
		return nil, fmt.Errorf("open follow-ups: %w", storage.ErrInvalidInput)
	}
	if entryPrice <= 0 || qty <= 0 {
		return nil, fmt.Errorf("open follow-ups for %s: %w", entity, ErrInvalidEntry)
	}

	return keylock.Do(ctx, l.locks, userID, func(ctx context.Context) ([]*domain.PendingOrder, error) {
		existing, err := l.store.GetByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load orders: %w", err)
		}
		for _, o := range existing {
			if o.Entity == entity && o.Status == domain.OrderStatusPending {
				return nil, nil
			}
		}

		created := CreateFollowUpOrders(userID, entity, entryPrice, qty, l.followUp, l.now())
		for _, o := range created {
			if err := l.store.Insert(ctx, o); err != nil {
				return nil, fmt.Errorf("insert order %s: %w", o.OrderID, err)
			}
		}
		observability.RecordOrdersCreated(len(created))
		l.logger.Info().
			Str("user", userID).
			Str("entity", entity).
			Float64("entry_price", entryPrice).
			Int("orders", len(created)).
			Msg("follow-up orders created")

		if err := l.enforceCap(ctx, userID); err != nil {
			return created, err
		}
		return created, nil
	}, l.execTimeout)
}

// enforceCap deletes the user's oldest orders beyond the cap.
func (l *Lifecycle) enforceCap(ctx context.Context, userID string) error {
	all, err := l.store.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	excess := len(all) - l.maxOrders
	for i := 0; i < excess; i++ {
		if err := l.store.Delete(ctx, all[i].OrderID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("drop order %s: %w", all[i].OrderID, err)
		}
	}
	if excess > 0 {
		l.logger.Debug().Str("user", userID).Int("dropped", excess).Msg("order cap enforced")
	}
	return nil
}

// MatchAndExecute settles every pending order of userID whose trigger is
// crossed by prices. Buys match at or below the trigger; sells and
// stop-losses at or above. Entities without a positive price are skipped.
//
// With auto-execution each match runs through the user's lock and exec;
// executor failures and panics are recorded, not returned. Without it,
// matches are marked triggered. Returns the orders that changed state.
func (l *Lifecycle) MatchAndExecute(ctx context.Context, userID string, prices map[string]float64, exec Executor) ([]*domain.PendingOrder, error) {
	if l.auto && exec == nil {
		return nil, ErrNoExecutor
	}

	all, err := l.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load orders for %s: %w", userID, err)
	}

	var (
		settled []*domain.PendingOrder
		errs    []error
	)
	for _, o := range all {
		if o.Status != domain.OrderStatusPending {
			continue
		}
		price, ok := prices[o.Entity]
		if !ok || !o.Matches(price) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if !l.auto {
			if err := l.markTriggered(ctx, o, price); err != nil {
				errs = append(errs, err)
				continue
			}
			settled = append(settled, o)
			continue
		}

		done, err := keylock.Do(ctx, l.locks, userID, func(ctx context.Context) (*domain.PendingOrder, error) {
			return l.execute(ctx, o.OrderID, price, exec)
		}, l.execTimeout)
		switch {
		case errors.Is(err, errNotPending):
			continue
		case errors.Is(err, keylock.ErrCommandTimeout):
			observability.RecordOrderOutcome(string(o.Kind), "timeout")
			l.logger.Warn().Str("user", userID).Str("order_id", o.OrderID).Msg("order execution timed out")
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}
		if done != nil {
			settled = append(settled, done)
		}
	}

	return settled, errors.Join(errs...)
}

// execute runs under the user's lock. It re-reads the order so a concurrent
// pass cannot settle it twice. Returns the executed order, or nil on an
// executor failure.
func (l *Lifecycle) execute(ctx context.Context, orderID string, price float64, exec Executor) (*domain.PendingOrder, error) {
	o, err := l.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order %s: %w", orderID, err)
	}
	if o.Status != domain.OrderStatusPending {
		return nil, errNotPending
	}

	execErr := safeExecute(ctx, exec, o, price)
	now := l.now().UnixMilli()

	if execErr != nil {
		observability.RecordOrderOutcome(string(o.Kind), "failed")
		l.logger.Error().Err(execErr).
			Str("user", o.UserID).
			Str("order_id", o.OrderID).
			Str("entity", o.Entity).
			Float64("price", price).
			Msg("order execution failed")
		l.recordTrade(ctx, o, price, domain.TradeStatusFail, execErr.Error(), now)

		if !l.keepPending {
			o.Status = domain.OrderStatusCancelled
			if err := l.store.Update(ctx, o); err != nil {
				return nil, fmt.Errorf("cancel order %s: %w", o.OrderID, err)
			}
		}
		return nil, nil
	}

	o.Status = domain.OrderStatusExecuted
	o.ExecutedPrice = &price
	o.ExecutedAt = &now
	if err := l.store.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", o.OrderID, err)
	}
	observability.RecordOrderOutcome(string(o.Kind), "executed")
	l.recordTrade(ctx, o, price, domain.TradeStatusSuccess, o.Reason, now)
	l.logger.Info().
		Str("user", o.UserID).
		Str("order_id", o.OrderID).
		Str("entity", o.Entity).
		Str("kind", string(o.Kind)).
		Float64("price", price).
		Msg("order executed")
	return o, nil
}

func (l *Lifecycle) markTriggered(ctx context.Context, o *domain.PendingOrder, price float64) error {
	now := l.now().UnixMilli()
	o.Status = domain.OrderStatusTriggered
	o.TriggeredPrice = &price
	o.TriggeredAt = &now
	if err := l.store.Update(ctx, o); err != nil {
		return fmt.Errorf("trigger order %s: %w", o.OrderID, err)
	}
	observability.RecordOrderOutcome(string(o.Kind), "triggered")
	l.recordTrade(ctx, o, price, domain.TradeStatusTriggered, o.Reason, now)
	l.logger.Info().
		Str("user", o.UserID).
		Str("order_id", o.OrderID).
		Float64("price", price).
		Msg("order triggered, awaiting manual action")
	return nil
}

// recordTrade writes the audit row for one attempt. Failures are logged only.
func (l *Lifecycle) recordTrade(ctx context.Context, o *domain.PendingOrder, price float64, status, reason string, at int64) {
	if l.trades == nil {
		return
	}
	action := domain.ActionFor(o.Kind)
	rec := &domain.TradeRecord{
		TradeID:   idhash.ComputeTradeID(o.UserID, o.OrderID, o.Entity, action+":"+status, at),
		UserID:    o.UserID,
		OrderID:   o.OrderID,
		Action:    action,
		Entity:    o.Entity,
		Amount:    o.Amount,
		Price:     price,
		Status:    status,
		Reason:    reason,
		CreatedAt: at,
	}
	if err := l.trades.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		l.logger.Warn().Err(err).Str("order_id", o.OrderID).Msg("trade record not saved")
	}
}

// Pending returns the user's pending orders.
func (l *Lifecycle) Pending(ctx context.Context, userID string) ([]*domain.PendingOrder, error) {
	all, err := l.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.Status == domain.OrderStatusPending {
			out = append(out, o)
		}
	}
	return out, nil
}
