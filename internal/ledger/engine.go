// Package ledger aggregates raw program events into per-entity evidence
// bitmasks over a short sliding window of slots.
package ledger

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/observability"
)

// Defaults
const (
	DefaultWindowSlots      = 3
	DefaultDensityThreshold = 3
	DefaultAlignmentSpan    = 2
	DefaultMaxFreshMints    = 20
	DefaultMinBits          = 2
)

// Options configures an Engine.
type Options struct {
	WindowSlots      int // retained slot buckets (default 3)
	DensityThreshold int // events per slot considered dense (default 3)
	AlignmentSpan    int64 // max first-to-last observed slot distance (default 2)
	MaxFreshMints    int // fresh mints considered per event (default 20)
	Classifier       Classifier
	Logger           *zerolog.Logger
}

// SlotStats summarizes one retained bucket.
type SlotStats struct {
	Slot      int64 `json:"slot"`
	Events    int   `json:"events"`
	Entities  int   `json:"entities"`
	Transfers int   `json:"transfers"`
}

// Engine maintains the slot window and answers mask queries.
// All methods are safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	buckets map[int64]*bucket
	order   []int64 // retained slots, ascending
	highest int64

	window     int
	density    int
	alignSpan  int64
	maxFresh   int
	classifier Classifier
	logger     zerolog.Logger
}

type bucket struct {
	slot        int64
	count       int
	entries     map[string]*entry
	authorities map[string]map[string]struct{} // authority -> entities
	transfers   []Transfer
	// latched holds derived bits attributed to this bucket that would
	// otherwise flip back off while the bucket is still retained.
	latched map[string]domain.Mask
}

type entry struct {
	flags     domain.Mask
	seenSlots map[int64]struct{}
}

// NewEngine creates a new Engine.
func NewEngine(opts Options) *Engine {
	window := opts.WindowSlots
	if window <= 0 {
		window = DefaultWindowSlots
	}
	density := opts.DensityThreshold
	if density <= 0 {
		density = DefaultDensityThreshold
	}
	alignSpan := opts.AlignmentSpan
	if alignSpan <= 0 {
		alignSpan = DefaultAlignmentSpan
	}
	maxFresh := opts.MaxFreshMints
	if maxFresh <= 0 {
		maxFresh = DefaultMaxFreshMints
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Engine{
		buckets:    make(map[int64]*bucket),
		window:     window,
		density:    density,
		alignSpan:  alignSpan,
		maxFresh:   maxFresh,
		classifier: classifier,
		logger:     logger.With().Str("component", "ledger").Logger(),
	}
}

// Ingest folds one event into its slot bucket.
// Events without a slot, or older than the whole retained window, are dropped.
// Ingest never panics.
func (e *Engine) Ingest(ev *domain.RawEvent) {
	if !ev.HasSlot() {
		observability.RecordEventDropped("no_slot")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().Int64("slot", ev.Slot).Interface("panic", r).Msg("ingest recovered")
			observability.RecordEventDropped("panic")
		}
	}()

	flags := e.classifier.Classify(ev.Kind, ev.SampleLogs)
	var transfers []Transfer
	if len(ev.SampleLogs) > 0 {
		transfers = e.classifier.ParseTransfers(ev.SampleLogs)
	}

	fresh := ev.FreshMints
	if len(fresh) > e.maxFresh {
		fresh = fresh[:e.maxFresh]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.ensureSlotLocked(ev.Slot)
	if b == nil {
		observability.RecordEventDropped("stale_slot")
		return
	}
	b.count++
	b.transfers = append(b.transfers, transfers...)

	for _, m := range fresh {
		if m == "" {
			continue
		}
		ent := b.entries[m]
		if ent == nil {
			ent = &entry{seenSlots: make(map[int64]struct{})}
			b.entries[m] = ent
		}
		ent.flags |= flags
		ent.seenSlots[ev.Slot] = struct{}{}

		if ev.Authority != "" {
			set := b.authorities[ev.Authority]
			if set == nil {
				set = make(map[string]struct{})
				b.authorities[ev.Authority] = set
			}
			set[m] = struct{}{}
		}
	}

	e.latchLocked(b, fresh, transfers)

	observability.RecordEventIngested(ev.Kind)
	observability.UpdateWindow(len(e.order), e.highest)
}

// ensureSlotLocked returns the bucket for slot, creating it and evicting the
// lowest slots if the window overflows. Returns nil for stale slots.
func (e *Engine) ensureSlotLocked(slot int64) *bucket {
	if b, ok := e.buckets[slot]; ok {
		return b
	}
	if len(e.order) >= e.window && slot < e.order[0] {
		return nil
	}

	b := &bucket{
		slot:        slot,
		entries:     make(map[string]*entry),
		authorities: make(map[string]map[string]struct{}),
		latched:     make(map[string]domain.Mask),
	}
	e.buckets[slot] = b
	i := sort.Search(len(e.order), func(i int) bool { return e.order[i] > slot })
	e.order = append(e.order, 0)
	copy(e.order[i+1:], e.order[i:])
	e.order[i] = slot
	if slot > e.highest {
		e.highest = slot
	}

	for len(e.order) > e.window {
		evicted := e.order[0]
		e.order = e.order[1:]
		delete(e.buckets, evicted)
		e.logger.Debug().Int64("slot", evicted).Msg("bucket evicted")
	}
	return b
}

// latchLocked records derived bits that can turn off without an eviction:
// clean funding (a group may grow past two transfers) and slot alignment
// (the observed span may widen).
func (e *Engine) latchLocked(b *bucket, fresh []string, added []Transfer) {
	var touched []string
	if len(added) > 0 {
		touched = touchedEntities(added, e.knownEntitiesLocked())
	}
	for _, s := range e.order {
		bb := e.buckets[s]
		if len(bb.transfers) == 0 {
			continue
		}
		// In b, the entities named by the new transfers may change too.
		candidates := fresh
		if bb == b {
			candidates = append(touched, fresh...)
		}
		for _, k := range candidates {
			if fundingBits(bb, k)&domain.BitCleanFunding != 0 {
				bb.latched[k] |= domain.BitCleanFunding
			}
		}
	}

	for _, k := range fresh {
		minS, maxS, ok := e.spanLocked(k)
		if !ok || maxS-minS > e.alignSpan {
			continue
		}
		if nb := e.buckets[maxS]; nb != nil {
			nb.latched[k] |= domain.BitSlotAligned
		}
	}
}

func (e *Engine) knownEntitiesLocked() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range e.order {
		for k := range e.buckets[s].entries {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

// touchedEntities returns the entities among known that a transfer in added
// is relevant to, using the same matching as fundingBits.
func touchedEntities(added []Transfer, known []string) []string {
	var out []string
	for _, k := range known {
		for _, t := range added {
			if t.To == k || t.From == k || strings.Contains(t.Raw, k) {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// spanLocked returns the first and last slot in which entity was observed.
func (e *Engine) spanLocked(entity string) (int64, int64, bool) {
	var minS, maxS int64
	found := false
	for _, s := range e.order {
		ent := e.buckets[s].entries[entity]
		if ent == nil {
			continue
		}
		for ss := range ent.seenSlots {
			if !found || ss < minS {
				minS = ss
			}
			if !found || ss > maxS {
				maxS = ss
			}
			found = true
		}
	}
	return minS, maxS, found
}

// MaskFor returns the evidence mask for entity across the retained window.
// An entity absent from every retained bucket has an empty mask.
func (e *Engine) MaskFor(entity string) domain.Mask {
	if entity == "" {
		return 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var mask domain.Mask
	present := false

	for _, s := range e.order {
		b := e.buckets[s]
		if ent := b.entries[entity]; ent != nil {
			present = true
			mask |= ent.flags
		}
		mask |= b.latched[entity]

		for _, set := range b.authorities {
			if _, ok := set[entity]; ok && len(set) > 1 {
				mask |= domain.BitSameAuthority
				break
			}
		}
		if b.count >= e.density {
			mask |= domain.BitSlotDensity
		}
		mask |= fundingBits(b, entity)
	}

	if !present {
		return 0
	}
	if minS, maxS, ok := e.spanLocked(entity); ok && maxS-minS <= e.alignSpan {
		mask |= domain.BitSlotAligned
	}
	return mask
}

// fundingBits evaluates the funding heuristics for entity within one bucket.
// Relevant transfers are grouped by destination; a group of at most two
// transfers from at most two sources is a clean funding pattern, and any
// source that is a recorded authority exposes the creator.
func fundingBits(b *bucket, entity string) domain.Mask {
	if len(b.transfers) == 0 {
		return 0
	}

	groups := make(map[string][]Transfer)
	for _, t := range b.transfers {
		if t.To == entity || t.From == entity || strings.Contains(t.Raw, entity) {
			key := t.To
			if key == "" {
				key = t.Raw
			}
			groups[key] = append(groups[key], t)
		}
	}

	var m domain.Mask
	for _, group := range groups {
		sources := make(map[string]struct{}, len(group))
		for _, t := range group {
			src := t.From
			if src == "" {
				src = t.Raw
			}
			sources[src] = struct{}{}
			if t.From != "" {
				if _, ok := b.authorities[t.From]; ok {
					m |= domain.BitCreatorExposed
				}
			}
		}
		if len(group) <= 2 && len(sources) <= 2 {
			m |= domain.BitCleanFunding
		}
	}
	return m
}

// IsStrongSignal reports whether the mask for entity has at least minBits set.
func (e *Engine) IsStrongSignal(entity string, minBits int) bool {
	return e.MaskFor(entity).Count() >= minBits
}

// Snapshot returns per-bucket statistics ordered by slot.
func (e *Engine) Snapshot() []SlotStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make([]SlotStats, 0, len(e.order))
	for _, s := range e.order {
		b := e.buckets[s]
		stats = append(stats, SlotStats{
			Slot:      s,
			Events:    b.count,
			Entities:  len(b.entries),
			Transfers: len(b.transfers),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Slot < stats[j].Slot
	})
	return stats
}

// Entities returns every entity observed in the retained window.
func (e *Engine) Entities() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.knownEntitiesLocked()
	sort.Strings(out)
	return out
}

// Reset drops all buckets.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buckets = make(map[int64]*bucket)
	e.order = nil
	e.highest = 0
}
