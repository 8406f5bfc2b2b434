// Package stub provides in-memory ingestion sources for tests.
package stub

import (
	"context"

	"solana-slot-sniper/internal/domain"
)

// EventSource replays a fixed list of events, then closes its channel.
// Events are delivered in the given order, so tests can feed them
// deliberately out of slot order.
type EventSource struct {
	events []*domain.RawEvent
}

// NewEventSource creates a new stub source. Events are copied on delivery.
func NewEventSource(events []*domain.RawEvent) *EventSource {
	return &EventSource{events: events}
}

// Subscribe implements ingestion.EventSource.
func (s *EventSource) Subscribe(ctx context.Context) (<-chan *domain.RawEvent, error) {
	ch := make(chan *domain.RawEvent)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			cp := *ev
			select {
			case ch <- &cp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// ChanSource exposes a channel the test writes to directly.
type ChanSource struct {
	C chan *domain.RawEvent
}

// NewChanSource creates a ChanSource with a buffered channel.
func NewChanSource(size int) *ChanSource {
	return &ChanSource{C: make(chan *domain.RawEvent, size)}
}

// Subscribe implements ingestion.EventSource.
func (s *ChanSource) Subscribe(context.Context) (<-chan *domain.RawEvent, error) {
	return s.C, nil
}
