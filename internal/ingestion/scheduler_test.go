package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/probe"
	"solana-slot-sniper/internal/slotclock"
)

type manualClock struct {
	mu   sync.Mutex
	slot int64
	ms   int64
}

func (c *manualClock) CurrentSlot() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

func (c *manualClock) MsIntoSlot() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *manualClock) set(slot, ms int64) {
	c.mu.Lock()
	c.slot, c.ms = slot, ms
	c.mu.Unlock()
}

type fireRecord struct {
	entity  string
	allowed bool
}

func newTestScheduler(clock slotclock.Clock, liquidity float64, fired chan<- fireRecord) *SlotScheduler {
	return NewSlotScheduler(SlotSchedulerOptions{
		Clock: clock,
		Liquidity: func(context.Context, string) float64 {
			return liquidity
		},
		Wait: slotclock.WaitOptions{PollInterval: time.Millisecond},
		OnFire: func(_ context.Context, trig domain.Trigger, allowed bool) {
			fired <- fireRecord{entity: trig.Entity, allowed: allowed}
		},
	})
}

func TestSlotScheduler_FiresAtNextSlot(t *testing.T) {
	tests := []struct {
		name      string
		mask      domain.Mask
		liquidity float64
		allowed   bool
	}{
		{"safe launch", domain.BitPoolInit | domain.BitTransferable, 10_000, true},
		{"thin pool", domain.BitPoolInit | domain.BitTransferable, 100, false},
		{"not transferable", domain.BitPoolInit, 10_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &manualClock{slot: 10, ms: 300}
			fired := make(chan fireRecord, 1)
			s := newTestScheduler(clock, tt.liquidity, fired)

			s.Schedule(context.Background(), domain.Trigger{Entity: mintA, Slot: 10}, probe.Result{Mint: mintA, Mask: tt.mask})

			select {
			case <-fired:
				t.Fatal("fired before the target slot")
			case <-time.After(20 * time.Millisecond):
			}

			clock.set(11, 1)
			select {
			case rec := <-fired:
				assert.Equal(t, mintA, rec.entity)
				assert.Equal(t, tt.allowed, rec.allowed)
			case <-time.After(time.Second):
				t.Fatal("trigger did not fire")
			}
			s.Wait()
			assert.Zero(t, s.Missed())
		})
	}
}

func TestSlotScheduler_SkipsPassedTarget(t *testing.T) {
	clock := &manualClock{slot: 20}
	fired := make(chan fireRecord, 1)
	s := newTestScheduler(clock, 10_000, fired)

	s.Schedule(context.Background(), domain.Trigger{Entity: mintA}, probe.Result{})
	clock.set(23, 0)
	s.Wait()

	require.Equal(t, 1, s.Missed())
	assert.Empty(t, fired, "a passed target is never fired late")
}

func TestSlotScheduler_Cancel(t *testing.T) {
	clock := &manualClock{slot: 5}
	fired := make(chan fireRecord, 1)
	s := newTestScheduler(clock, 10_000, fired)

	ctx, cancel := context.WithCancel(context.Background())
	s.Schedule(ctx, domain.Trigger{Entity: mintA}, probe.Result{})
	cancel()
	s.Wait()

	assert.Empty(t, fired)
	assert.Zero(t, s.Missed())
}
