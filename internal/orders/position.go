package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage"
)

var (
	// ErrPositionOpen is returned when opening a position that is already active.
	ErrPositionOpen = errors.New("position already open")

	// ErrNoPosition is returned when no position exists, or none is active
	// where one is required.
	ErrNoPosition = errors.New("no position")
)

// PositionBook tracks one position per (user, entity).
// Each read-modify-write is serialized so concurrent callers see a consistent book.
type PositionBook struct {
	mu     sync.Mutex
	store  storage.PositionStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewPositionBook creates a PositionBook over store.
func NewPositionBook(store storage.PositionStore, logger *zerolog.Logger) *PositionBook {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &PositionBook{
		store:  store,
		now:    time.Now,
		logger: l.With().Str("component", "positions").Logger(),
	}
}

// Open records an entry. Returns ErrPositionOpen if the position is active.
func (b *PositionBook) Open(ctx context.Context, userID, entity string, price, qty float64, matching int) (*domain.Position, error) {
	if userID == "" || entity == "" || price <= 0 || qty <= 0 {
		return nil, fmt.Errorf("open position: %w", storage.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, err := b.getLocked(ctx, userID, entity)
	if err != nil && !errors.Is(err, ErrNoPosition) {
		return nil, err
	}
	if cur.IsOpen() {
		return nil, ErrPositionOpen
	}

	now := b.now().UnixMilli()
	p := &domain.Position{
		UserID:             userID,
		Entity:             entity,
		EntryPrice:         price,
		EntryTime:          now,
		Quantity:           qty,
		Status:             domain.PositionActive,
		MatchingTimeframes: matching,
		UpdatedAt:          now,
	}
	if cur != nil {
		p.LastSellPrice = cur.LastSellPrice
	}
	if err := b.store.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	b.logger.Info().Str("user", userID).Str("entity", entity).Float64("price", price).Msg("position opened")
	return p, nil
}

// RecordSell reduces an active position by qty at price. The position is
// closed once nothing remains.
func (b *PositionBook) RecordSell(ctx context.Context, userID, entity string, price, qty float64) (*domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.getLocked(ctx, userID, entity)
	if err != nil {
		return nil, err
	}
	if !p.IsOpen() {
		return nil, ErrNoPosition
	}

	p.LastSellPrice = &price
	p.Quantity -= qty
	if p.Quantity <= 0 {
		p.Quantity = 0
		p.Status = domain.PositionClosed
	}
	p.UpdatedAt = b.now().UnixMilli()
	if err := b.store.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	return p, nil
}

// Close sells the whole position at price.
func (b *PositionBook) Close(ctx context.Context, userID, entity string, price float64) (*domain.Position, error) {
	p, err := b.Get(ctx, userID, entity)
	if err != nil {
		return nil, err
	}
	return b.RecordSell(ctx, userID, entity, price, p.Quantity)
}

// Get returns the position in any status. Returns ErrNoPosition if absent.
func (b *PositionBook) Get(ctx context.Context, userID, entity string) (*domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getLocked(ctx, userID, entity)
}

func (b *PositionBook) getLocked(ctx context.Context, userID, entity string) (*domain.Position, error) {
	p, err := b.store.Get(ctx, userID, entity)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoPosition
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	return p, nil
}

// ForUser returns every position of userID in any status.
func (b *PositionBook) ForUser(ctx context.Context, userID string) ([]*domain.Position, error) {
	return b.store.GetByUser(ctx, userID)
}

// Active returns every active position across users.
func (b *PositionBook) Active(ctx context.Context) ([]*domain.Position, error) {
	return b.store.ListActive(ctx)
}

// ApplyReEntry resets a closed position to waiting when repeat is set and
// price has come back to or below the original entry. Reports whether the
// reset happened.
func (b *PositionBook) ApplyReEntry(ctx context.Context, userID, entity string, price float64, repeat bool) (bool, error) {
	if !repeat || price <= 0 {
		return false, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.getLocked(ctx, userID, entity)
	if err != nil {
		return false, err
	}
	if p.Status != domain.PositionClosed || price > p.EntryPrice {
		return false, nil
	}

	p.Status = domain.PositionWaiting
	p.Quantity = 0
	p.LastSellPrice = nil
	p.UpdatedAt = b.now().UnixMilli()
	if err := b.store.Upsert(ctx, p); err != nil {
		return false, fmt.Errorf("save position: %w", err)
	}
	b.logger.Info().Str("user", userID).Str("entity", entity).Float64("price", price).Msg("position reset for re-entry")
	return true, nil
}
