package ingestion

import (
	"errors"
	"sort"

	"solana-slot-sniper/internal/domain"
)

// ErrInvalidOrdering is returned when events are not properly ordered.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortRawEvents orders events by (slot ASC, signature ASC). The sort is
// stable so unsigned events in one slot keep their arrival order.
func SortRawEvents(events []*domain.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareRawEvents(events[i], events[j]) < 0
	})
}

// ValidateRawEventOrdering checks that events are sorted by (slot, signature).
func ValidateRawEventOrdering(events []*domain.RawEvent) error {
	for i := 1; i < len(events); i++ {
		if compareRawEvents(events[i-1], events[i]) > 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// compareRawEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareRawEvents(a, b *domain.RawEvent) int {
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	if a.Signature != b.Signature {
		if a.Signature < b.Signature {
			return -1
		}
		return 1
	}
	return 0
}
