package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

// TradeRecordStore implements storage.TradeRecordStore using PostgreSQL.
type TradeRecordStore struct {
	pool *Pool
}

// NewTradeRecordStore creates a new TradeRecordStore.
func NewTradeRecordStore(pool *Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)

// Insert adds a new trade record. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(ctx context.Context, r *domain.TradeRecord) (err error) {
	if r == nil || r.TradeID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_trade_record", time.Now(), &err)

	query := `
		INSERT INTO trade_records (
			trade_id, user_id, order_id, action, entity,
			amount, price, status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		r.TradeID, r.UserID, r.OrderID, r.Action, r.Entity,
		r.Amount, r.Price, r.Status, r.Reason, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

// GetByID retrieves a trade record by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `
		SELECT trade_id, user_id, order_id, action, entity, amount, price, status, reason, created_at
		FROM trade_records
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	r, err := scanTradeRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return r, nil
}

// GetByUser retrieves all trade records of a user, ordered by created_at ASC.
func (s *TradeRecordStore) GetByUser(ctx context.Context, userID string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT trade_id, user_id, order_id, action, entity, amount, price, status, reason, created_at
		FROM trade_records
		WHERE user_id = $1
		ORDER BY created_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get trade records by user: %w", err)
	}
	defer rows.Close()

	var records []*domain.TradeRecord
	for rows.Next() {
		r, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade record rows: %w", err)
	}
	return records, nil
}

// scanTradeRecord scans a single row into a TradeRecord.
func scanTradeRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var r domain.TradeRecord

	err := row.Scan(
		&r.TradeID, &r.UserID, &r.OrderID, &r.Action, &r.Entity,
		&r.Amount, &r.Price, &r.Status, &r.Reason, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
