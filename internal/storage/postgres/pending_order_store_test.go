package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

func createTestOrder(orderID, userID string, kind domain.OrderKind, createdAt int64) *domain.PendingOrder {
	return &domain.PendingOrder{
		OrderID:      orderID,
		UserID:       userID,
		Entity:       "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
		Kind:         kind,
		TriggerPrice: 103,
		Amount:       0.5,
		CreatedAt:    createdAt,
		Status:       domain.OrderStatusPending,
	}
}

func TestPendingOrderStore_InsertAndGetByID(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewPendingOrderStore(pool)

	o := createTestOrder("order-1", "user-1", domain.OrderKindSell, 1000)
	require.NoError(t, store.Insert(ctx, o))

	got, err := store.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, o.UserID, got.UserID)
	assert.Equal(t, o.Entity, got.Entity)
	assert.Equal(t, domain.OrderKindSell, got.Kind)
	assert.InDelta(t, 103, got.TriggerPrice, 1e-9)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Nil(t, got.ExecutedPrice)
	assert.Nil(t, got.TriggeredAt)

	assert.ErrorIs(t, store.Insert(ctx, o), storage.ErrDuplicateKey)
}

func TestPendingOrderStore_Update(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewPendingOrderStore(pool)

	o := createTestOrder("order-1", "user-1", domain.OrderKindStopLoss, 1000)
	assert.ErrorIs(t, store.Update(ctx, o), storage.ErrNotFound)
	require.NoError(t, store.Insert(ctx, o))

	o.Status = domain.OrderStatusTriggered
	o.TriggeredPrice = ptr(104.5)
	o.TriggeredAt = ptr(int64(5000))
	require.NoError(t, store.Update(ctx, o))

	got, err := store.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusTriggered, got.Status)
	require.NotNil(t, got.TriggeredPrice)
	assert.InDelta(t, 104.5, *got.TriggeredPrice, 1e-9)
	require.NotNil(t, got.TriggeredAt)
	assert.Equal(t, int64(5000), *got.TriggeredAt)
}

func TestPendingOrderStore_GetByUserAndDelete(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	store := NewPendingOrderStore(pool)

	require.NoError(t, store.Insert(ctx, createTestOrder("b", "user-1", domain.OrderKindSell, 2000)))
	require.NoError(t, store.Insert(ctx, createTestOrder("a", "user-1", domain.OrderKindSell, 1000)))
	require.NoError(t, store.Insert(ctx, createTestOrder("c", "user-2", domain.OrderKindBuy, 1500)))

	orders, err := store.GetByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "a", orders[0].OrderID)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, users)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.ErrorIs(t, store.Delete(ctx, "a"), storage.ErrNotFound)
}

func TestPendingOrderStore_RejectsUnknownKind(t *testing.T) {
	pool := newTestPool(t)

	o := createTestOrder("order-x", "user-1", "limit", 1000)
	assert.ErrorIs(t, NewPendingOrderStore(pool).Insert(context.Background(), o), storage.ErrInvalidInput)
}
