package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	user_id, entity, entry_price, entry_time, quantity, status,
	matching_timeframes, last_sell_price, updated_at
`

// Upsert inserts or replaces a position.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.UserID == "" || p.Entity == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, entity) DO UPDATE SET
			entry_price = EXCLUDED.entry_price,
			entry_time = EXCLUDED.entry_time,
			quantity = EXCLUDED.quantity,
			status = EXCLUDED.status,
			matching_timeframes = EXCLUDED.matching_timeframes,
			last_sell_price = EXCLUDED.last_sell_price,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		p.UserID, p.Entity, p.EntryPrice, p.EntryTime, p.Quantity, string(p.Status),
		p.MatchingTimeframes, p.LastSellPrice, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Get retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, userID, entity string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_id = $1 AND entity = $2`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, userID, entity))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// GetByUser retrieves all positions of a user, ordered by entity.
func (s *PositionStore) GetByUser(ctx context.Context, userID string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE user_id = $1 ORDER BY entity`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get positions by user: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ListActive retrieves all active positions across users.
func (s *PositionStore) ListActive(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = 'active' ORDER BY user_id, entity`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p      domain.Position
		status string
	)
	err := row.Scan(
		&p.UserID, &p.Entity, &p.EntryPrice, &p.EntryTime, &p.Quantity, &status,
		&p.MatchingTimeframes, &p.LastSellPrice, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}
