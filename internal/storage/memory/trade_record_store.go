package memory

import (
	"context"
	"sort"
	"sync"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

// TradeRecordStore keeps trade records in memory, indexed by id and user.
type TradeRecordStore struct {
	mu     sync.RWMutex
	byID   map[string]domain.TradeRecord
	byUser map[string][]string
}

func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		byID:   make(map[string]domain.TradeRecord),
		byUser: make(map[string][]string),
	}
}

// Insert stores a copy of r. Trade records are append-only.
func (s *TradeRecordStore) Insert(_ context.Context, r *domain.TradeRecord) error {
	if r == nil || r.TradeID == "" || r.UserID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.TradeID]; ok {
		return storage.ErrDuplicateKey
	}
	s.byID[r.TradeID] = *r
	s.byUser[r.UserID] = append(s.byUser[r.UserID], r.TradeID)
	return nil
}

func (s *TradeRecordStore) GetByID(_ context.Context, tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[tradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

// GetByUser returns the user's records by created_at, ties by trade_id.
func (s *TradeRecordStore) GetByUser(_ context.Context, userID string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	ids := s.byUser[userID]
	out := make([]*domain.TradeRecord, 0, len(ids))
	for _, id := range ids {
		r := s.byID[id]
		out = append(out, &r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].TradeID < out[j].TradeID
	})
	return out, nil
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
