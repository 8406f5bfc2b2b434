package memory

import (
	"context"
	"sort"
	"sync"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

// PendingOrderStore is an in-memory implementation of storage.PendingOrderStore.
type PendingOrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PendingOrder // keyed by order_id
}

// NewPendingOrderStore creates a new in-memory pending order store.
func NewPendingOrderStore() *PendingOrderStore {
	return &PendingOrderStore{
		data: make(map[string]*domain.PendingOrder),
	}
}

// Insert adds a new order. Returns ErrDuplicateKey if order_id exists.
func (s *PendingOrderStore) Insert(_ context.Context, o *domain.PendingOrder) error {
	if o == nil || o.OrderID == "" || o.UserID == "" || !o.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OrderID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[o.OrderID] = cloneOrder(o)
	return nil
}

// Update replaces status and settlement metadata. Returns ErrNotFound if not exists.
func (s *PendingOrderStore) Update(_ context.Context, o *domain.PendingOrder) error {
	if o == nil || o.OrderID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OrderID]; !exists {
		return storage.ErrNotFound
	}
	s.data[o.OrderID] = cloneOrder(o)
	return nil
}

// Delete removes an order. Returns ErrNotFound if not exists.
func (s *PendingOrderStore) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[orderID]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, orderID)
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *PendingOrderStore) GetByID(_ context.Context, orderID string) (*domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[orderID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneOrder(o), nil
}

// GetByUser retrieves all orders of a user, ordered by created_at ASC.
func (s *PendingOrderStore) GetByUser(_ context.Context, userID string) ([]*domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PendingOrder
	for _, o := range s.data {
		if o.UserID == userID {
			result = append(result, cloneOrder(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].OrderID < result[j].OrderID
	})
	return result, nil
}

// ListUsers returns the distinct users holding at least one pending order.
func (s *PendingOrderStore) ListUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var users []string
	for _, o := range s.data {
		if o.Status != domain.OrderStatusPending {
			continue
		}
		if _, ok := seen[o.UserID]; !ok {
			seen[o.UserID] = struct{}{}
			users = append(users, o.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func cloneOrder(o *domain.PendingOrder) *domain.PendingOrder {
	c := *o
	if o.ExecutedPrice != nil {
		v := *o.ExecutedPrice
		c.ExecutedPrice = &v
	}
	if o.ExecutedAt != nil {
		v := *o.ExecutedAt
		c.ExecutedAt = &v
	}
	if o.TriggeredPrice != nil {
		v := *o.TriggeredPrice
		c.TriggeredPrice = &v
	}
	if o.TriggeredAt != nil {
		v := *o.TriggeredAt
		c.TriggeredAt = &v
	}
	return &c
}

var _ storage.PendingOrderStore = (*PendingOrderStore)(nil)
