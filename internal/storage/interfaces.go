package storage

import (
	"context"

	"solana-slot-sniper/internal/domain"
)

// PendingOrderStore provides access to pending_orders storage.
type PendingOrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if order_id exists.
	Insert(ctx context.Context, o *domain.PendingOrder) error

	// Update replaces status and settlement metadata. Returns ErrNotFound if not exists.
	Update(ctx context.Context, o *domain.PendingOrder) error

	// Delete removes an order. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, orderID string) error

	// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, orderID string) (*domain.PendingOrder, error)

	// GetByUser retrieves all orders of a user, ordered by created_at ASC.
	GetByUser(ctx context.Context, userID string) ([]*domain.PendingOrder, error)

	// ListUsers returns the distinct users holding at least one pending order.
	ListUsers(ctx context.Context) ([]string, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade record. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, r *domain.TradeRecord) error

	// GetByID retrieves a trade record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByUser retrieves all trade records of a user, ordered by created_at ASC.
	GetByUser(ctx context.Context, userID string) ([]*domain.TradeRecord, error)
}

// PositionStore provides access to positions storage, keyed by (user_id, entity).
type PositionStore interface {
	// Upsert inserts or replaces a position.
	Upsert(ctx context.Context, p *domain.Position) error

	// Get retrieves a position. Returns ErrNotFound if not exists.
	Get(ctx context.Context, userID, entity string) (*domain.Position, error)

	// GetByUser retrieves all positions of a user, ordered by entity.
	GetByUser(ctx context.Context, userID string) ([]*domain.Position, error)

	// ListActive retrieves all active positions across users.
	ListActive(ctx context.Context) ([]*domain.Position, error)
}

// TriggerStore provides access to readiness_triggers storage.
type TriggerStore interface {
	// Insert records a trigger. Inserting an existing trigger_id is a no-op.
	Insert(ctx context.Context, t *domain.Trigger) error

	// GetByEntity retrieves all triggers for an entity, ordered by slot ASC.
	GetByEntity(ctx context.Context, entity string) ([]*domain.Trigger, error)

	// GetBySlotRange retrieves triggers with slot in [from, to], ordered by slot ASC.
	GetBySlotRange(ctx context.Context, from, to int64) ([]*domain.Trigger, error)
}
