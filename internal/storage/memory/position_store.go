package memory

import (
	"context"
	"sort"
	"sync"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

type positionKey struct {
	userID string
	entity string
}

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[positionKey]*domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[positionKey]*domain.Position),
	}
}

// Upsert inserts or replaces a position.
func (s *PositionStore) Upsert(_ context.Context, p *domain.Position) error {
	if p == nil || p.UserID == "" || p.Entity == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[positionKey{p.UserID, p.Entity}] = clonePosition(p)
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, userID, entity string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[positionKey{userID, entity}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return clonePosition(p), nil
}

// GetByUser retrieves all positions of a user, ordered by entity.
func (s *PositionStore) GetByUser(_ context.Context, userID string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for k, p := range s.data {
		if k.userID == userID {
			result = append(result, clonePosition(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Entity < result[j].Entity
	})
	return result, nil
}

// ListActive retrieves all active positions across users.
func (s *PositionStore) ListActive(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Status == domain.PositionActive {
			result = append(result, clonePosition(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		return result[i].Entity < result[j].Entity
	})
	return result, nil
}

func clonePosition(p *domain.Position) *domain.Position {
	c := *p
	if p.LastSellPrice != nil {
		v := *p.LastSellPrice
		c.LastSellPrice = &v
	}
	return &c
}

var _ storage.PositionStore = (*PositionStore)(nil)
