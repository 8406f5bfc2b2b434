package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

// PendingOrderStore implements storage.PendingOrderStore using PostgreSQL.
type PendingOrderStore struct {
	pool *Pool
}

// NewPendingOrderStore creates a new PendingOrderStore.
func NewPendingOrderStore(pool *Pool) *PendingOrderStore {
	return &PendingOrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PendingOrderStore = (*PendingOrderStore)(nil)

const pendingOrderColumns = `
	order_id, user_id, entity, kind, trigger_price, amount, created_at,
	status, reason, executed_price, executed_at, triggered_price, triggered_at
`

// Insert adds a new order. Returns ErrDuplicateKey if order_id exists.
func (s *PendingOrderStore) Insert(ctx context.Context, o *domain.PendingOrder) (err error) {
	if o == nil || o.OrderID == "" || o.UserID == "" || !o.Kind.IsValid() {
		return storage.ErrInvalidInput
	}
	defer observe("insert_pending_order", time.Now(), &err)

	query := `
		INSERT INTO pending_orders (` + pendingOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.pool.Exec(ctx, query,
		o.OrderID, o.UserID, o.Entity, string(o.Kind), o.TriggerPrice, o.Amount, o.CreatedAt,
		string(o.Status), o.Reason, o.ExecutedPrice, o.ExecutedAt, o.TriggeredPrice, o.TriggeredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pending order: %w", err)
	}
	return nil
}

// Update replaces status and settlement metadata. Returns ErrNotFound if not exists.
func (s *PendingOrderStore) Update(ctx context.Context, o *domain.PendingOrder) (err error) {
	if o == nil || o.OrderID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("update_pending_order", time.Now(), &err)

	query := `
		UPDATE pending_orders
		SET status = $2, reason = $3,
			executed_price = $4, executed_at = $5,
			triggered_price = $6, triggered_at = $7
		WHERE order_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		o.OrderID, string(o.Status), o.Reason,
		o.ExecutedPrice, o.ExecutedAt, o.TriggeredPrice, o.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("update pending order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes an order. Returns ErrNotFound if not exists.
func (s *PendingOrderStore) Delete(ctx context.Context, orderID string) (err error) {
	defer observe("delete_pending_order", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_orders WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete pending order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *PendingOrderStore) GetByID(ctx context.Context, orderID string) (*domain.PendingOrder, error) {
	query := `SELECT ` + pendingOrderColumns + ` FROM pending_orders WHERE order_id = $1`

	row := s.pool.QueryRow(ctx, query, orderID)
	o, err := scanPendingOrder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pending order by id: %w", err)
	}
	return o, nil
}

// GetByUser retrieves all orders of a user, ordered by created_at ASC.
func (s *PendingOrderStore) GetByUser(ctx context.Context, userID string) (_ []*domain.PendingOrder, err error) {
	defer observe("get_pending_orders_by_user", time.Now(), &err)

	query := `
		SELECT ` + pendingOrderColumns + `
		FROM pending_orders
		WHERE user_id = $1
		ORDER BY created_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get pending orders by user: %w", err)
	}
	defer rows.Close()

	var orders []*domain.PendingOrder
	for rows.Next() {
		o, err := scanPendingOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending order rows: %w", err)
	}
	return orders, nil
}

// ListUsers returns the distinct users holding at least one pending order.
func (s *PendingOrderStore) ListUsers(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM pending_orders
		WHERE status = 'pending'
		ORDER BY user_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users with pending orders: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect users: %w", err)
	}
	return users, nil
}

// scanPendingOrder scans a single row into a PendingOrder.
func scanPendingOrder(row pgx.Row) (*domain.PendingOrder, error) {
	var (
		o      domain.PendingOrder
		kind   string
		status string
	)

	err := row.Scan(
		&o.OrderID, &o.UserID, &o.Entity, &kind, &o.TriggerPrice, &o.Amount, &o.CreatedAt,
		&status, &o.Reason, &o.ExecutedPrice, &o.ExecutedAt, &o.TriggeredPrice, &o.TriggeredAt,
	)
	if err != nil {
		return nil, err
	}

	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
