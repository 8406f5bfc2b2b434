// Package slotclock maps wall-clock time to logical slots and fires
// execution at a precise point inside a target slot.
package slotclock

import (
	"time"
)

// Defaults
const (
	DefaultSlotDuration  = 400 * time.Millisecond
	DefaultTriggerWindow = 5 * time.Millisecond
	DefaultPollInterval  = time.Millisecond
)

// Clock reports the current logical slot.
type Clock interface {
	CurrentSlot() int64
	MsIntoSlot() int64
}

// positioner is implemented by clocks that can report slot and offset
// from a single time reading.
type positioner interface {
	Position() (slot int64, ms int64)
}

// SlotClock derives slots from elapsed wall-clock time:
// slot = base + floor((now - start) / slotDuration).
type SlotClock struct {
	baseSlot int64
	start    time.Time
	slotDur  time.Duration
	now      func() time.Time
}

// Option configures a SlotClock.
type Option func(*SlotClock)

// WithSlotDuration sets the slot length.
func WithSlotDuration(d time.Duration) Option {
	return func(c *SlotClock) {
		if d > 0 {
			c.slotDur = d
		}
	}
}

// WithNow sets the time source. The clock's origin is taken from it.
func WithNow(now func() time.Time) Option {
	return func(c *SlotClock) {
		if now != nil {
			c.now = now
		}
	}
}

// NewSlotClock creates a clock whose current slot is baseSlot right now.
func NewSlotClock(baseSlot int64, opts ...Option) *SlotClock {
	c := &SlotClock{
		baseSlot: baseSlot,
		slotDur:  DefaultSlotDuration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.start = c.now()
	return c
}

// CurrentSlot returns the current slot.
func (c *SlotClock) CurrentSlot() int64 {
	slot, _ := c.Position()
	return slot
}

// MsIntoSlot returns milliseconds elapsed since the current slot began.
func (c *SlotClock) MsIntoSlot() int64 {
	_, ms := c.Position()
	return ms
}

// Position returns the current slot and the offset into it from one reading.
func (c *SlotClock) Position() (int64, int64) {
	elapsed := c.now().Sub(c.start)
	if elapsed < 0 {
		elapsed = 0
	}
	slot := c.baseSlot + int64(elapsed/c.slotDur)
	ms := (elapsed % c.slotDur).Milliseconds()
	return slot, ms
}

// SlotDuration returns the slot length.
func (c *SlotClock) SlotDuration() time.Duration {
	return c.slotDur
}

var _ Clock = (*SlotClock)(nil)
