package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/storage"
)

// TriggerStore implements storage.TriggerStore using ClickHouse.
type TriggerStore struct {
	conn *Conn
}

// NewTriggerStore creates a new TriggerStore.
func NewTriggerStore(conn *Conn) *TriggerStore {
	return &TriggerStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TriggerStore = (*TriggerStore)(nil)

// Insert records a trigger. Inserting an existing trigger_id is a no-op.
func (s *TriggerStore) Insert(ctx context.Context, t *domain.Trigger) (err error) {
	if t == nil || t.TriggerID == "" || t.Entity == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_trigger", time.Since(start).Seconds(), err)
	}()

	// ReplacingMergeTree collapses duplicates eventually; the explicit check
	// keeps reads consistent before a merge happens.
	exists, err := s.exists(ctx, t.TriggerID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return nil
	}

	query := `
		INSERT INTO readiness_triggers (
			trigger_id, entity, slot, mask_bits, probe_mask, ledger_mask, score, triggered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	maskBits := t.MaskBits
	if maskBits == nil {
		maskBits = []string{}
	}

	err = s.conn.Exec(ctx, query,
		t.TriggerID, t.Entity, t.Slot, maskBits,
		uint32(t.ProbeMask), uint32(t.LedgerMask), t.Score, t.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// GetByEntity retrieves all triggers for an entity, ordered by slot ASC.
func (s *TriggerStore) GetByEntity(ctx context.Context, entity string) ([]*domain.Trigger, error) {
	query := `
		SELECT trigger_id, entity, slot, mask_bits, probe_mask, ledger_mask, score, triggered_at
		FROM readiness_triggers FINAL
		WHERE entity = ?
		ORDER BY slot ASC, trigger_id ASC
	`
	return s.query(ctx, query, entity)
}

// GetBySlotRange retrieves triggers with slot in [from, to], ordered by slot ASC.
func (s *TriggerStore) GetBySlotRange(ctx context.Context, from, to int64) ([]*domain.Trigger, error) {
	query := `
		SELECT trigger_id, entity, slot, mask_bits, probe_mask, ledger_mask, score, triggered_at
		FROM readiness_triggers FINAL
		WHERE slot >= ? AND slot <= ?
		ORDER BY slot ASC, trigger_id ASC
	`
	return s.query(ctx, query, from, to)
}

func (s *TriggerStore) query(ctx context.Context, query string, args ...any) ([]*domain.Trigger, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*domain.Trigger
	for rows.Next() {
		var (
			t          domain.Trigger
			probeMask  uint32
			ledgerMask uint32
		)
		if err := rows.Scan(
			&t.TriggerID, &t.Entity, &t.Slot, &t.MaskBits,
			&probeMask, &ledgerMask, &t.Score, &t.TriggeredAt,
		); err != nil {
			return nil, fmt.Errorf("scan trigger row: %w", err)
		}
		t.ProbeMask = domain.Mask(probeMask)
		t.LedgerMask = domain.Mask(ledgerMask)
		triggers = append(triggers, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigger rows: %w", err)
	}
	return triggers, nil
}

func (s *TriggerStore) exists(ctx context.Context, triggerID string) (bool, error) {
	var count uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM readiness_triggers WHERE trigger_id = ?`, triggerID)
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
