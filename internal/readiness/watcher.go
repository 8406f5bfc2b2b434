package readiness

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/idhash"
	"solana-slot-sniper/internal/observability"
)

// DefaultMinLedgerBits is the ledger popcount treated as a strong signal.
const DefaultMinLedgerBits = 2

// State is the readiness state of one entity.
type State string

const (
	StateUnknown State = "unknown" // no evidence
	StateProbing State = "probing" // some evidence, not yet decided
	StateReady   State = "ready"   // triggered; terminal
)

// SignalSource provides ledger evidence. *ledger.Engine implements it.
type SignalSource interface {
	MaskFor(entity string) domain.Mask
	IsStrongSignal(entity string, minBits int) bool
}

// Evaluation is the outcome of one Update.
type Evaluation struct {
	Entity     string      `json:"entity"`
	Slot       int64       `json:"slot"`
	State      State       `json:"state"`
	ProbeMask  domain.Mask `json:"probeMask"`
	LedgerMask domain.Mask `json:"ledgerMask"`
	Bits       []string    `json:"bits"`
	Score      float64     `json:"score"`
	Strong     bool        `json:"strong"`
	Fired      bool        `json:"fired"` // true only for the update that emitted the trigger
}

// Trigger builds the trigger record for a fired evaluation.
func (ev Evaluation) Trigger(at time.Time) domain.Trigger {
	return domain.Trigger{
		TriggerID:   idhash.ComputeTriggerID(ev.Entity, ev.Slot),
		Entity:      ev.Entity,
		Slot:        ev.Slot,
		MaskBits:    ev.Bits,
		ProbeMask:   ev.ProbeMask,
		LedgerMask:  ev.LedgerMask,
		Score:       ev.Score,
		TriggeredAt: at.UnixMilli(),
	}
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Signals       SignalSource
	Weights       Weights // zero value uses DefaultWeights
	Threshold     float64 // default 0.80
	MinLedgerBits int     // default 2
	OnTrigger     func(domain.Trigger)
	Now           func() time.Time
	Logger        *zerolog.Logger
}

// Watcher tracks readiness per entity and emits each entity's trigger at most once.
type Watcher struct {
	mu        sync.Mutex
	states    map[string]State
	last      map[string]Evaluation
	threshold float64
	triggered int

	signals   SignalSource
	weights   Weights
	minBits   int
	onTrigger func(domain.Trigger)
	now       func() time.Time
	logger    zerolog.Logger
}

// NewWatcher creates a new Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	weights := opts.Weights
	if len(weights.Probe) == 0 {
		weights = DefaultWeights()
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	minBits := opts.MinLedgerBits
	if minBits <= 0 {
		minBits = DefaultMinLedgerBits
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Watcher{
		states:    make(map[string]State),
		last:      make(map[string]Evaluation),
		threshold: threshold,
		signals:   opts.Signals,
		weights:   weights,
		minBits:   minBits,
		onTrigger: opts.OnTrigger,
		now:       now,
		logger:    logger.With().Str("component", "readiness").Logger(),
	}
}

// Update re-evaluates entity with fresh probe evidence at slot.
// The first positive decision latches the entity and fires OnTrigger once;
// later updates for a ready entity are no-ops.
func (w *Watcher) Update(entity string, slot int64, probe domain.Mask) Evaluation {
	probe &= domain.ProbeMask

	var ledger domain.Mask
	var strong bool
	if w.signals != nil {
		ledger = w.signals.MaskFor(entity)
		strong = w.signals.IsStrongSignal(entity, w.minBits)
	}
	score := Score(probe, ledger, w.weights)

	ev := Evaluation{
		Entity:     entity,
		Slot:       slot,
		ProbeMask:  probe,
		LedgerMask: ledger,
		Bits:       (probe | ledger).Names(),
		Score:      score,
		Strong:     strong,
	}

	w.mu.Lock()
	if w.states[entity] == StateReady {
		prev := w.last[entity]
		w.mu.Unlock()
		prev.Fired = false
		return prev
	}

	switch {
	case Decide(probe, strong, score, w.threshold):
		ev.State = StateReady
		ev.Fired = true
		w.triggered++
	case probe|ledger != 0:
		ev.State = StateProbing
	default:
		ev.State = StateUnknown
	}
	w.states[entity] = ev.State
	w.last[entity] = ev
	w.mu.Unlock()

	observability.RecordEvaluation(string(ev.State), (probe | ledger).Count())

	if ev.Fired {
		trig := ev.Trigger(w.now())
		observability.RecordTrigger()
		w.logger.Info().
			Str("entity", entity).
			Int64("slot", slot).
			Float64("score", score).
			Bool("strong", strong).
			Strs("bits", ev.Bits).
			Msg("readiness trigger")
		if w.onTrigger != nil {
			w.onTrigger(trig)
		}
	}
	return ev
}

// State returns the current state of entity.
func (w *Watcher) State(entity string) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.states[entity]; ok {
		return s
	}
	return StateUnknown
}

// Last returns the most recent evaluation of entity.
func (w *Watcher) Last(entity string) (Evaluation, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ev, ok := w.last[entity]
	return ev, ok
}

// SetThreshold replaces the score threshold for subsequent updates.
func (w *Watcher) SetThreshold(th float64) {
	if th <= 0 || th > 1 {
		return
	}
	w.mu.Lock()
	w.threshold = th
	w.mu.Unlock()
	w.logger.Info().Float64("threshold", th).Msg("threshold updated")
}

// Threshold returns the current score threshold.
func (w *Watcher) Threshold() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.threshold
}

// Triggered returns the number of triggers emitted so far.
func (w *Watcher) Triggered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.triggered
}
