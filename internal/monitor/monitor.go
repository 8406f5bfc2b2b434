// Package monitor periodically settles pending orders against fresh prices
// and keeps follow-up orders in place for every active position.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/orders"
)

// Monitor defaults
const (
	DefaultInterval       = 3 * time.Second
	DefaultMaxConcurrent  = 10
	DefaultStatusInterval = time.Minute
)

// Options configures a Monitor.
type Options struct {
	Users     UserSource
	Prices    PriceSource
	Lifecycle *orders.Lifecycle
	Positions *orders.PositionBook // optional; nil disables follow-up creation
	Executor  orders.Executor

	// RepeatOnEntry resets closed positions to waiting once price returns
	// to or below their entry.
	RepeatOnEntry bool

	Interval       time.Duration // default 3s
	MaxConcurrent  int           // users processed in parallel, default 10
	StatusInterval time.Duration // default 1m

	Now    func() time.Time
	Logger *zerolog.Logger
}

// CycleReport summarizes one monitor pass.
type CycleReport struct {
	Users    int           `json:"users"`
	Settled  int           `json:"settled"`
	Created  int           `json:"created"`
	Reset    int           `json:"reset"` // closed positions reopened for re-entry
	Failed   int           `json:"failed"` // users whose pass returned an error
	Duration time.Duration `json:"duration"`
}

// Monitor runs the order-check cycle.
type Monitor struct {
	users     UserSource
	prices    PriceSource
	lifecycle *orders.Lifecycle
	positions *orders.PositionBook
	exec      orders.Executor
	repeat    bool
	limit     int
	status    time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu         sync.Mutex
	interval   time.Duration
	reset      chan struct{}
	cycles     int
	totals     CycleReport
	lastStatus time.Time
}

// New creates a new Monitor.
func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Monitor{
		users:     opts.Users,
		prices:    opts.Prices,
		lifecycle: opts.Lifecycle,
		positions: opts.Positions,
		exec:      opts.Executor,
		repeat:    opts.RepeatOnEntry,
		limit:     opts.MaxConcurrent,
		status:    opts.StatusInterval,
		now:       opts.Now,
		logger:    logger.With().Str("component", "monitor").Logger(),
		interval:  opts.Interval,
		reset:     make(chan struct{}, 1),
	}
}

// SetInterval changes the cycle period; a running loop picks it up on its
// next tick.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	changed := d != m.interval
	m.interval = d
	m.mu.Unlock()
	if !changed {
		return
	}
	select {
	case m.reset <- struct{}{}:
	default:
	}
	m.logger.Info().Dur("interval", d).Msg("monitor interval updated")
}

// Interval returns the current cycle period.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Run executes a cycle immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().Dur("interval", m.Interval()).Int("max_concurrent", m.limit).Msg("monitor started")

	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("monitor cycle failed")
		}
		m.maybeLogStatus()

		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopping")
			return ctx.Err()
		case <-m.reset:
			ticker.Reset(m.Interval())
		case <-ticker.C:
		}
	}
}

// RunOnce visits every active user once. A failing user does not stop the
// others; the returned error joins every user error.
func (m *Monitor) RunOnce(ctx context.Context) (CycleReport, error) {
	start := m.now()
	var report CycleReport

	users, err := m.users.ActiveUsers(ctx)
	if err != nil {
		observability.RecordMonitorCycle("error", m.now().Sub(start).Seconds(), m.now().Unix())
		return report, fmt.Errorf("active users: %w", err)
	}
	report.Users = len(users)

	var active map[string][]*domain.Position
	if m.positions != nil {
		active, err = m.activeByUser(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("active positions unavailable, skipping follow-ups")
		}
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(m.limit)
	for _, u := range users {
		u := u
		g.Go(func() error {
			res, err := m.processUser(ctx, u, active[u])
			mu.Lock()
			defer mu.Unlock()
			report.Settled += res.settled
			report.Created += res.created
			report.Reset += res.reset
			if err != nil {
				report.Failed++
				errs = append(errs, fmt.Errorf("user %s: %w", u, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = m.now().Sub(start)
	status := "ok"
	if len(errs) > 0 {
		status = "error"
	}
	observability.RecordMonitorCycle(status, report.Duration.Seconds(), m.now().Unix())

	m.mu.Lock()
	m.cycles++
	m.totals.Users = report.Users
	m.totals.Settled += report.Settled
	m.totals.Created += report.Created
	m.totals.Reset += report.Reset
	m.totals.Failed += report.Failed
	m.mu.Unlock()

	return report, errors.Join(errs...)
}

func (m *Monitor) activeByUser(ctx context.Context) (map[string][]*domain.Position, error) {
	all, err := m.positions.Active(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*domain.Position)
	for _, p := range all {
		out[p.UserID] = append(out[p.UserID], p)
	}
	return out, nil
}

type userResult struct {
	settled, created, reset int
}

// processUser settles the user's matched orders, books executed sells
// against the position, reopens closed positions for re-entry, then
// re-creates follow-ups for active positions left without pending orders.
// MatchAndExecute and OpenFollowUps each take the user's lock themselves.
func (m *Monitor) processUser(ctx context.Context, userID string, positions []*domain.Position) (userResult, error) {
	var res userResult
	prices, err := m.prices.Prices(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("prices: %w", err)
	}

	settled, err := m.lifecycle.MatchAndExecute(ctx, userID, prices, m.exec)
	for _, o := range settled {
		m.bookSell(ctx, o)
	}
	res.settled = len(settled)
	if err != nil {
		return res, err
	}
	res.reset = m.reenter(ctx, userID, prices)

	for _, p := range positions {
		cur, err := m.positions.Get(ctx, userID, p.Entity)
		if err != nil || !cur.IsOpen() {
			continue
		}
		legs, err := m.lifecycle.OpenFollowUps(ctx, userID, p.Entity, cur.EntryPrice, cur.Quantity)
		if err != nil {
			m.logger.Warn().Err(err).Str("user", userID).Str("entity", p.Entity).Msg("follow-up creation failed")
			continue
		}
		if len(legs) > 0 {
			res.created += len(legs)
			m.logger.Info().Str("user", userID).Str("entity", p.Entity).Int("orders", len(legs)).Msg("follow-up orders created")
		}
	}
	return res, nil
}

// reenter applies the re-entry rule to the user's closed positions at the
// snapshot price. Entities missing from the snapshot are left alone.
func (m *Monitor) reenter(ctx context.Context, userID string, prices map[string]float64) int {
	if !m.repeat || m.positions == nil {
		return 0
	}
	all, err := m.positions.ForUser(ctx, userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("user", userID).Msg("positions unavailable, skipping re-entry")
		return 0
	}
	n := 0
	for _, p := range all {
		if p.Status != domain.PositionClosed {
			continue
		}
		price, ok := prices[p.Entity]
		if !ok {
			continue
		}
		reset, err := m.positions.ApplyReEntry(ctx, userID, p.Entity, price, true)
		if err != nil {
			m.logger.Warn().Err(err).Str("user", userID).Str("entity", p.Entity).Msg("re-entry failed")
			continue
		}
		if reset {
			n++
		}
	}
	return n
}

// bookSell reduces the position after an executed sell or stop-loss.
func (m *Monitor) bookSell(ctx context.Context, o *domain.PendingOrder) {
	if m.positions == nil || o.Status != domain.OrderStatusExecuted || o.Kind == domain.OrderKindBuy || o.ExecutedPrice == nil {
		return
	}
	_, err := m.positions.RecordSell(ctx, o.UserID, o.Entity, *o.ExecutedPrice, o.Amount)
	if err != nil && !errors.Is(err, orders.ErrNoPosition) {
		m.logger.Warn().Err(err).Str("user", o.UserID).Str("order_id", o.OrderID).Msg("position not updated")
	}
}

func (m *Monitor) maybeLogStatus() {
	now := m.now()
	m.mu.Lock()
	if now.Sub(m.lastStatus) < m.status {
		m.mu.Unlock()
		return
	}
	m.lastStatus = now
	cycles, totals := m.cycles, m.totals
	m.mu.Unlock()

	m.logger.Info().
		Int("cycles", cycles).
		Int("users", totals.Users).
		Int("settled", totals.Settled).
		Int("created", totals.Created).
		Int("reset", totals.Reset).
		Int("failed", totals.Failed).
		Msg("monitor status")
}

// Stats returns the number of completed cycles and the running totals.
func (m *Monitor) Stats() (int, CycleReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles, m.totals
}
