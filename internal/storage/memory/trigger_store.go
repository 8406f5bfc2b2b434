package memory

import (
	"context"
	"sort"
	"sync"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

// TriggerStore is an in-memory implementation of storage.TriggerStore.
type TriggerStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trigger // keyed by trigger_id
}

// NewTriggerStore creates a new in-memory trigger store.
func NewTriggerStore() *TriggerStore {
	return &TriggerStore{
		data: make(map[string]*domain.Trigger),
	}
}

// Insert records a trigger. Inserting an existing trigger_id is a no-op.
func (s *TriggerStore) Insert(_ context.Context, t *domain.Trigger) error {
	if t == nil || t.TriggerID == "" || t.Entity == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TriggerID]; exists {
		return nil
	}
	s.data[t.TriggerID] = cloneTrigger(t)
	return nil
}

// GetByEntity retrieves all triggers for an entity, ordered by slot ASC.
func (s *TriggerStore) GetByEntity(_ context.Context, entity string) ([]*domain.Trigger, error) {
	return s.filter(func(t *domain.Trigger) bool { return t.Entity == entity }), nil
}

// GetBySlotRange retrieves triggers with slot in [from, to], ordered by slot ASC.
func (s *TriggerStore) GetBySlotRange(_ context.Context, from, to int64) ([]*domain.Trigger, error) {
	return s.filter(func(t *domain.Trigger) bool { return t.Slot >= from && t.Slot <= to }), nil
}

func (s *TriggerStore) filter(keep func(*domain.Trigger) bool) []*domain.Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trigger
	for _, t := range s.data {
		if keep(t) {
			result = append(result, cloneTrigger(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].TriggerID < result[j].TriggerID
	})
	return result
}

// Len returns the number of stored triggers.
func (s *TriggerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func cloneTrigger(t *domain.Trigger) *domain.Trigger {
	c := *t
	c.MaskBits = append([]string(nil), t.MaskBits...)
	return &c
}

var _ storage.TriggerStore = (*TriggerStore)(nil)
