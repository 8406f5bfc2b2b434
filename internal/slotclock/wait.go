package slotclock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/observability"
)

// ErrSlotPassed is returned when the target slot is already behind the clock.
var ErrSlotPassed = errors.New("target slot already passed")

// WaitOptions configures WaitForSlot.
type WaitOptions struct {
	TriggerWindow time.Duration // default 5ms
	PollInterval  time.Duration // default 1ms
	Logger        *zerolog.Logger
}

// Arrival describes when the wait fired.
type Arrival struct {
	Slot int64 `json:"slot"`
	Ms   int64 `json:"ms"`
}

// WaitForSlot blocks until clock reaches target within the trigger window,
// then calls graph.Trigger synchronously. It returns ErrSlotPassed once the
// clock is past target and ctx.Err() on cancellation.
func WaitForSlot(ctx context.Context, clock Clock, target int64, graph *ExecutionGraph, opts WaitOptions) (Arrival, error) {
	window := opts.TriggerWindow
	if window <= 0 {
		window = DefaultTriggerWindow
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	windowMs := window.Milliseconds()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		slot, ms := position(clock)
		switch {
		case slot == target && ms <= windowMs:
			graph.Trigger()
			observability.RecordSlotArrival(ms)
			logger.Debug().Int64("slot", slot).Int64("ms", ms).Msg("slot reached")
			return Arrival{Slot: slot, Ms: ms}, nil
		case slot > target || (slot == target && ms > windowMs):
			observability.RecordSlotMissed()
			return Arrival{}, fmt.Errorf("%w: target %d, current %d (+%dms)", ErrSlotPassed, target, slot, ms)
		}

		select {
		case <-ctx.Done():
			return Arrival{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func position(c Clock) (int64, int64) {
	if p, ok := c.(positioner); ok {
		return p.Position()
	}
	return c.CurrentSlot(), c.MsIntoSlot()
}
