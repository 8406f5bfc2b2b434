// Package ingestion feeds raw program events into the signal engine and
// drives readiness evaluation and slot scheduling.
package ingestion

import (
	"context"

	"solana-slot-sniper/internal/domain"
)

// EventSource provides a stream of raw program events.
// The channel is closed when the source is exhausted or ctx is cancelled.
// Events may arrive out of slot order; Runner restores ordering.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *domain.RawEvent, error)
}
