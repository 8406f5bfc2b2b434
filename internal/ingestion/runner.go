package ingestion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/ledger"
	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/probe"
	"solana-slot-sniper/internal/readiness"
	"solana-slot-sniper/internal/storage"
)

// Runner defaults
const (
	DefaultSlotLagWindow = 2
	DefaultFlushInterval = time.Second
	DefaultProbeTTL      = 5 * time.Second
	DefaultProbeWorkers  = 4
	shutdownFlushTimeout = 5 * time.Second
)

// Prober gathers probe evidence for a mint. *probe.Prober implements it.
type Prober interface {
	Probe(ctx context.Context, mint, creator string) (probe.Result, error)
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source    EventSource
	Engine    *ledger.Engine
	Watcher   *readiness.Watcher
	Prober    Prober               // nil evaluates on ledger evidence alone
	Triggers  storage.TriggerStore // optional
	Scheduler Scheduler            // optional

	ProbeTTL      time.Duration // reuse a probe result this long, default 5s
	ProbeWorkers  int           // concurrent probes per slot, default 4
	SlotLagWindow int64         // slots buffered before processing, default 2
	FlushInterval time.Duration // finalized-slot flush period, default 1s

	Now    func() time.Time
	Logger *zerolog.Logger
}

// RunnerStats counts what the Runner has processed.
type RunnerStats struct {
	Events      int `json:"events"`
	Dropped     int `json:"dropped"`
	Slots       int `json:"slots"`
	Probes      int `json:"probes"`
	ProbeErrors int `json:"probeErrors"`
	Triggers    int `json:"triggers"`
}

// EntityStatus is the current view of one entity.
type EntityStatus struct {
	Entity     string          `json:"entity"`
	State      readiness.State `json:"state"`
	Slot       int64           `json:"slot,omitempty"`
	Bits       []string        `json:"bits"`
	Score      float64         `json:"score"`
	Strong     bool            `json:"strong"`
	LedgerMask domain.Mask     `json:"ledgerMask"`
	Probe      *probe.Result   `json:"probe,omitempty"`
}

type cachedProbe struct {
	res probe.Result
	at  time.Time
}

// Runner feeds source events through the ledger engine, probes the fresh
// mints of each finalized slot and re-evaluates their readiness. Fired
// triggers are persisted and handed to the scheduler.
//
// Events are buffered by slot and processed once the highest seen slot is
// SlotLagWindow ahead, so out-of-order arrivals within the lag are applied
// in (slot, signature) order.
type Runner struct {
	source    EventSource
	engine    *ledger.Engine
	watcher   *readiness.Watcher
	prober    Prober
	triggers  storage.TriggerStore
	scheduler Scheduler
	probeTTL  time.Duration
	workers   int
	lag       int64
	flush     time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	buffer      map[int64][]*domain.RawEvent
	highestSlot int64

	mu     sync.RWMutex
	probes map[string]cachedProbe
	stats  RunnerStats
}

// NewRunner creates a new Runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.ProbeTTL <= 0 {
		opts.ProbeTTL = DefaultProbeTTL
	}
	if opts.ProbeWorkers <= 0 {
		opts.ProbeWorkers = DefaultProbeWorkers
	}
	if opts.SlotLagWindow < 0 {
		opts.SlotLagWindow = 0
	} else if opts.SlotLagWindow == 0 {
		opts.SlotLagWindow = DefaultSlotLagWindow
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Runner{
		source:    opts.Source,
		engine:    opts.Engine,
		watcher:   opts.Watcher,
		prober:    opts.Prober,
		triggers:  opts.Triggers,
		scheduler: opts.Scheduler,
		probeTTL:  opts.ProbeTTL,
		workers:   opts.ProbeWorkers,
		lag:       opts.SlotLagWindow,
		flush:     opts.FlushInterval,
		now:       opts.Now,
		logger:    logger.With().Str("component", "runner").Logger(),
		buffer:    make(map[int64][]*domain.RawEvent),
		probes:    make(map[string]cachedProbe),
	}
}

// Run consumes the source until it is exhausted or ctx is cancelled.
// Buffered slots are flushed on exit. Exhaustion returns nil.
func (r *Runner) Run(ctx context.Context) error {
	events, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.flush)
	defer ticker.Stop()

	r.logger.Info().Int64("slot_lag", r.lag).Dur("flush_interval", r.flush).Msg("runner started")

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			r.flushAllSlots(fctx)
			cancel()
			r.logger.Info().Msg("runner stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				r.flushAllSlots(ctx)
				r.logger.Info().Interface("stats", r.Stats()).Msg("source exhausted")
				return nil
			}
			r.bufferEvent(ctx, ev)

		case <-ticker.C:
			r.processFinalizedSlots(ctx)
		}
	}
}

// bufferEvent adds ev to its slot and processes slots that fell behind the lag.
func (r *Runner) bufferEvent(ctx context.Context, ev *domain.RawEvent) {
	if !ev.HasSlot() {
		observability.RecordEventDropped("no_slot")
		r.mu.Lock()
		r.stats.Dropped++
		r.mu.Unlock()
		return
	}
	r.buffer[ev.Slot] = append(r.buffer[ev.Slot], ev)

	switch {
	case ev.Slot > r.highestSlot:
		r.highestSlot = ev.Slot
		r.processFinalizedSlots(ctx)
	case ev.Slot <= r.highestSlot-r.lag:
		// late event for a finalized slot
		r.processSlot(ctx, ev.Slot)
	}
}

// processFinalizedSlots processes every buffered slot at or behind
// highestSlot-lag, in ascending order.
func (r *Runner) processFinalizedSlots(ctx context.Context) {
	r.processUpTo(ctx, r.highestSlot-r.lag)
}

func (r *Runner) flushAllSlots(ctx context.Context) {
	r.processUpTo(ctx, r.highestSlot)
}

func (r *Runner) processUpTo(ctx context.Context, finalized int64) {
	var slots []int64
	for slot := range r.buffer {
		if slot <= finalized {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	for _, slot := range slots {
		r.processSlot(ctx, slot)
	}
}

// candidate is a fresh mint and the authority of the first event naming it.
type candidate struct {
	mint    string
	creator string
}

func (r *Runner) processSlot(ctx context.Context, slot int64) {
	events := r.buffer[slot]
	delete(r.buffer, slot)
	if len(events) == 0 {
		return
	}
	SortRawEvents(events)

	seen := make(map[string]bool)
	var cands []candidate
	for _, ev := range events {
		r.engine.Ingest(ev)
		for _, m := range ev.FreshMints {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			cands = append(cands, candidate{mint: m, creator: ev.Authority})
		}
	}

	r.mu.Lock()
	r.stats.Events += len(events)
	r.stats.Slots++
	r.mu.Unlock()

	results := r.probeAll(ctx, cands)
	for _, c := range cands {
		res := results[c.mint]
		ev := r.watcher.Update(c.mint, slot, res.Mask)
		if ev.Fired {
			r.handleTrigger(ctx, ev, res)
		}
	}

	r.logger.Debug().
		Int64("slot", slot).
		Int("events", len(events)).
		Int("entities", len(cands)).
		Msg("slot processed")
}

// probeAll probes candidates concurrently. Failed probes contribute no
// evidence; they never stop evaluation.
func (r *Runner) probeAll(ctx context.Context, cands []candidate) map[string]probe.Result {
	out := make(map[string]probe.Result, len(cands))
	if r.prober == nil {
		return out
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, c := range cands {
		c := c
		if res, ok := r.cached(c.mint); ok {
			out[c.mint] = res
			continue
		}
		g.Go(func() error {
			res, err := r.prober.Probe(ctx, c.mint, c.creator)

			r.mu.Lock()
			r.stats.Probes++
			if err != nil {
				r.stats.ProbeErrors++
			} else if !res.Degraded {
				r.probes[c.mint] = cachedProbe{res: res, at: r.now()}
			}
			r.mu.Unlock()

			if err != nil {
				r.logger.Warn().Err(err).Str("entity", c.mint).Msg("probe failed")
				return nil
			}
			mu.Lock()
			out[c.mint] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Runner) cached(mint string) (probe.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.probes[mint]
	if !ok || r.now().Sub(c.at) >= r.probeTTL {
		return probe.Result{}, false
	}
	return c.res, true
}

func (r *Runner) handleTrigger(ctx context.Context, ev readiness.Evaluation, res probe.Result) {
	trig := ev.Trigger(r.now())

	r.mu.Lock()
	r.stats.Triggers++
	r.mu.Unlock()

	if r.triggers != nil {
		if err := r.triggers.Insert(ctx, &trig); err != nil {
			r.logger.Error().Err(err).Str("entity", trig.Entity).Msg("persist trigger failed")
		}
	}
	if r.scheduler != nil {
		r.scheduler.Schedule(ctx, trig, res)
	}
}

// Stats returns a snapshot of the runner counters.
func (r *Runner) Stats() RunnerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// EntityStatus reports the readiness view of entity. ok is false for
// entities the runner has never evaluated.
func (r *Runner) EntityStatus(entity string) (EntityStatus, bool) {
	ev, ok := r.watcher.Last(entity)
	if !ok {
		return EntityStatus{}, false
	}
	st := EntityStatus{
		Entity:     entity,
		State:      r.watcher.State(entity),
		Slot:       ev.Slot,
		Bits:       ev.Bits,
		Score:      ev.Score,
		Strong:     ev.Strong,
		LedgerMask: r.engine.MaskFor(entity),
	}
	r.mu.RLock()
	if c, ok := r.probes[entity]; ok {
		res := c.res
		st.Probe = &res
	}
	r.mu.RUnlock()
	return st, true
}
