package orders

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/storage/memory"
)

const (
	user  = "user-1"
	mintA = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	mintB = "So11111111111111111111111111111111111111112"
)

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func newTestLifecycle(opts Options) (*Lifecycle, *memory.PendingOrderStore, *memory.TradeRecordStore) {
	store := memory.NewPendingOrderStore()
	trades := memory.NewTradeRecordStore()
	opts.Store = store
	opts.Trades = trades
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	return NewLifecycle(opts), store, trades
}

func pendingSell(id string, trigger float64) *domain.PendingOrder {
	return &domain.PendingOrder{
		OrderID:      id,
		UserID:       user,
		Entity:       mintA,
		Kind:         domain.OrderKindSell,
		TriggerPrice: trigger,
		Amount:       1,
		CreatedAt:    1,
		Status:       domain.OrderStatusPending,
	}
}

func okExecutor(calls *int32) Executor {
	return ExecutorFunc(func(context.Context, *domain.PendingOrder, float64) error {
		atomic.AddInt32(calls, 1)
		return nil
	})
}

func TestCreateFollowUpOrders(t *testing.T) {
	orders := CreateFollowUpOrders(user, mintA, 100, 10, DefaultFollowUpConfig(), fixedNow())
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}

	want := []struct {
		kind    domain.OrderKind
		trigger float64
		amount  float64
		reason  string
	}{
		{domain.OrderKindSell, 101, 5, "Take Profit 1: +1.0%"},
		{domain.OrderKindSell, 103, 5, "Take Profit 2: +3.0%"},
		{domain.OrderKindStopLoss, 97, 10, "Stop Loss: -3.0%"},
	}
	ids := make(map[string]bool)
	for i, w := range want {
		o := orders[i]
		if o.Kind != w.kind || o.TriggerPrice != w.trigger || o.Amount != w.amount || o.Reason != w.reason {
			t.Errorf("order %d = %+v, want %+v", i, o, w)
		}
		if o.Status != domain.OrderStatusPending || o.UserID != user || o.Entity != mintA {
			t.Errorf("order %d has wrong owner or status: %+v", i, o)
		}
		if o.CreatedAt != 1700000000000 {
			t.Errorf("order %d CreatedAt = %d", i, o.CreatedAt)
		}
		ids[o.OrderID] = true
	}
	if len(ids) != 3 {
		t.Errorf("order IDs must be unique: %v", ids)
	}
}

func TestCreateFollowUpOrders_Rounding(t *testing.T) {
	orders := CreateFollowUpOrders(user, mintA, 0.000012345678912, 3, FollowUpConfig{}, fixedNow())
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].TriggerPrice != 0.000012469 {
		t.Errorf("TP1 trigger = %v, want 0.000012469", orders[0].TriggerPrice)
	}
	if orders[0].Amount != 1.5 {
		t.Errorf("TP amount = %v, want 1.5", orders[0].Amount)
	}
}

func TestCreateFollowUpOrders_Invalid(t *testing.T) {
	if got := CreateFollowUpOrders(user, mintA, 0, 10, FollowUpConfig{}, fixedNow()); got != nil {
		t.Errorf("zero price should yield no orders, got %d", len(got))
	}
	if got := CreateFollowUpOrders(user, mintA, 1, -1, FollowUpConfig{}, fixedNow()); got != nil {
		t.Errorf("negative quantity should yield no orders, got %d", len(got))
	}
}

func TestOpenFollowUps_Idempotent(t *testing.T) {
	ctx := context.Background()
	lc, store, _ := newTestLifecycle(Options{})

	first, err := lc.OpenFollowUps(ctx, user, mintA, 100, 10)
	if err != nil {
		t.Fatalf("OpenFollowUps: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(first))
	}

	second, err := lc.OpenFollowUps(ctx, user, mintA, 120, 10)
	if err != nil {
		t.Fatalf("OpenFollowUps: %v", err)
	}
	if second != nil {
		t.Errorf("second call must be a no-op, got %d orders", len(second))
	}

	// Another entity is independent.
	if other, _ := lc.OpenFollowUps(ctx, user, mintB, 1, 1); len(other) != 3 {
		t.Errorf("expected 3 orders for another entity, got %d", len(other))
	}

	all, _ := store.GetByUser(ctx, user)
	if len(all) != 6 {
		t.Errorf("expected 6 stored orders, got %d", len(all))
	}
}

func TestOpenFollowUps_InvalidEntry(t *testing.T) {
	lc, _, _ := newTestLifecycle(Options{})
	if _, err := lc.OpenFollowUps(context.Background(), user, mintA, 0, 1); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestOpenFollowUps_Cap(t *testing.T) {
	ctx := context.Background()
	var clock int64 = 1000
	lc, store, _ := newTestLifecycle(Options{
		MaxOrdersPerUser: 5,
		Now: func() time.Time {
			clock++
			return time.UnixMilli(clock)
		},
	})

	if _, err := lc.OpenFollowUps(ctx, user, mintA, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := lc.OpenFollowUps(ctx, user, mintB, 100, 1); err != nil {
		t.Fatal(err)
	}

	all, _ := store.GetByUser(ctx, user)
	if len(all) != 5 {
		t.Fatalf("expected cap of 5 orders, got %d", len(all))
	}
	var forA int
	for _, o := range all {
		if o.Entity == mintA {
			forA++
		}
	}
	if forA != 2 {
		t.Errorf("oldest order should be dropped first; %d orders remain for first entity", forA)
	}
}

func TestMatchAndExecute_SellCrossing(t *testing.T) {
	tests := []struct {
		name    string
		trigger float64
		price   float64
		want    bool
	}{
		{"price above trigger executes", 103, 105, true},
		{"price below trigger waits", 110, 105, false},
		{"price at trigger executes", 105, 105, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lc, store, trades := newTestLifecycle(Options{})
			if err := store.Insert(ctx, pendingSell("o1", tt.trigger)); err != nil {
				t.Fatal(err)
			}

			var calls int32
			settled, err := lc.MatchAndExecute(ctx, user, map[string]float64{mintA: tt.price}, okExecutor(&calls))
			if err != nil {
				t.Fatalf("MatchAndExecute: %v", err)
			}
			if got := len(settled) == 1; got != tt.want {
				t.Fatalf("executed = %v, want %v", got, tt.want)
			}

			o, _ := store.GetByID(ctx, "o1")
			recs, _ := trades.GetByUser(ctx, user)
			if !tt.want {
				if o.Status != domain.OrderStatusPending || calls != 0 || len(recs) != 0 {
					t.Errorf("unmatched order must stay untouched: %+v calls=%d trades=%d", o, calls, len(recs))
				}
				return
			}
			if o.Status != domain.OrderStatusExecuted {
				t.Errorf("status = %s, want executed", o.Status)
			}
			if o.ExecutedPrice == nil || *o.ExecutedPrice != tt.price {
				t.Errorf("executed price not recorded: %v", o.ExecutedPrice)
			}
			if o.ExecutedAt == nil || *o.ExecutedAt != 1700000000000 {
				t.Errorf("executed at not recorded: %v", o.ExecutedAt)
			}
			if len(recs) != 1 || recs[0].Status != domain.TradeStatusSuccess || recs[0].Action != domain.TradeActionSell {
				t.Errorf("expected one successful sell record, got %+v", recs)
			}
		})
	}
}

func TestMatchAndExecute_Kinds(t *testing.T) {
	ctx := context.Background()
	lc, store, _ := newTestLifecycle(Options{})

	buy := pendingSell("buy", 100)
	buy.Kind = domain.OrderKindBuy
	stop := pendingSell("stop", 97)
	stop.Kind = domain.OrderKindStopLoss
	other := pendingSell("other", 1)
	other.Entity = mintB
	for _, o := range []*domain.PendingOrder{buy, stop, other} {
		if err := store.Insert(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	var calls int32
	settled, err := lc.MatchAndExecute(ctx, user, map[string]float64{mintA: 99, mintB: 0}, okExecutor(&calls))
	if err != nil {
		t.Fatal(err)
	}
	// 99 <= 100 fills the buy, 99 >= 97 fills the stop; mintB has no price.
	if len(settled) != 2 || calls != 2 {
		t.Fatalf("expected 2 executions, got settled=%d calls=%d", len(settled), calls)
	}
	if o, _ := store.GetByID(ctx, "other"); o.Status != domain.OrderStatusPending {
		t.Errorf("order without a price must stay pending, got %s", o.Status)
	}
}

func TestMatchAndExecute_ManualMode(t *testing.T) {
	ctx := context.Background()
	lc, store, trades := newTestLifecycle(Options{AutoExecute: Bool(false)})
	if err := store.Insert(ctx, pendingSell("o1", 103)); err != nil {
		t.Fatal(err)
	}

	settled, err := lc.MatchAndExecute(ctx, user, map[string]float64{mintA: 105}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(settled) != 1 {
		t.Fatalf("expected 1 triggered order, got %d", len(settled))
	}

	o, _ := store.GetByID(ctx, "o1")
	if o.Status != domain.OrderStatusTriggered {
		t.Errorf("status = %s, want triggered", o.Status)
	}
	if o.TriggeredPrice == nil || *o.TriggeredPrice != 105 || o.TriggeredAt == nil {
		t.Errorf("triggered metadata missing: %+v", o)
	}
	if o.ExecutedPrice != nil {
		t.Errorf("manual mode must not set executed price")
	}
	recs, _ := trades.GetByUser(ctx, user)
	if len(recs) != 1 || recs[0].Status != domain.TradeStatusTriggered {
		t.Errorf("expected one triggered record, got %+v", recs)
	}

	// Triggered is not pending: a second pass leaves it alone.
	settled, _ = lc.MatchAndExecute(ctx, user, map[string]float64{mintA: 105}, nil)
	if len(settled) != 0 {
		t.Errorf("triggered order matched again")
	}
}

func TestMatchAndExecute_ExecutorFailure(t *testing.T) {
	tests := []struct {
		name        string
		keepPending *bool
		exec        Executor
		wantStatus  domain.OrderStatus
	}{
		{
			name:       "error keeps pending",
			exec:       ExecutorFunc(func(context.Context, *domain.PendingOrder, float64) error { return errors.New("rpc down") }),
			wantStatus: domain.OrderStatusPending,
		},
		{
			name:       "panic keeps pending",
			exec:       ExecutorFunc(func(context.Context, *domain.PendingOrder, float64) error { panic("boom") }),
			wantStatus: domain.OrderStatusPending,
		},
		{
			name:        "error cancels",
			keepPending: Bool(false),
			exec:        ExecutorFunc(func(context.Context, *domain.PendingOrder, float64) error { return errors.New("rejected") }),
			wantStatus:  domain.OrderStatusCancelled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lc, store, trades := newTestLifecycle(Options{KeepPendingOnFailure: tt.keepPending})
			if err := store.Insert(ctx, pendingSell("o1", 103)); err != nil {
				t.Fatal(err)
			}

			settled, err := lc.MatchAndExecute(ctx, user, map[string]float64{mintA: 105}, tt.exec)
			if err != nil {
				t.Fatalf("executor failures must not surface: %v", err)
			}
			if len(settled) != 0 {
				t.Errorf("failed order reported as settled")
			}
			o, _ := store.GetByID(ctx, "o1")
			if o.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", o.Status, tt.wantStatus)
			}
			recs, _ := trades.GetByUser(ctx, user)
			if len(recs) != 1 || recs[0].Status != domain.TradeStatusFail || recs[0].Reason == "" {
				t.Errorf("expected one failed record with reason, got %+v", recs)
			}
		})
	}
}

func TestMatchAndExecute_NoExecutor(t *testing.T) {
	lc, _, _ := newTestLifecycle(Options{})
	if _, err := lc.MatchAndExecute(context.Background(), user, nil, nil); !errors.Is(err, ErrNoExecutor) {
		t.Errorf("expected ErrNoExecutor, got %v", err)
	}
}

func TestMatchAndExecute_ConcurrentPassesExecuteOnce(t *testing.T) {
	ctx := context.Background()
	lc, store, _ := newTestLifecycle(Options{})
	if err := store.Insert(ctx, pendingSell("o1", 103)); err != nil {
		t.Fatal(err)
	}

	var calls int32
	exec := okExecutor(&calls)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = lc.MatchAndExecute(ctx, user, map[string]float64{mintA: 105}, exec)
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("order executed %d times, want 1", calls)
	}
}

func TestPositionBook(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(memory.NewPositionStore(), nil)

	if _, err := book.Get(ctx, user, mintA); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}

	p, err := book.Open(ctx, user, mintA, 100, 10, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.Status != domain.PositionActive || p.MatchingTimeframes != 3 {
		t.Errorf("unexpected position: %+v", p)
	}
	if _, err := book.Open(ctx, user, mintA, 90, 1, 3); !errors.Is(err, ErrPositionOpen) {
		t.Errorf("expected ErrPositionOpen, got %v", err)
	}

	p, err = book.RecordSell(ctx, user, mintA, 101, 4)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != domain.PositionActive || p.Quantity != 6 {
		t.Errorf("partial sell: %+v", p)
	}

	p, err = book.Close(ctx, user, mintA, 103)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != domain.PositionClosed || p.LastSellPrice == nil || *p.LastSellPrice != 103 {
		t.Errorf("close: %+v", p)
	}
	if _, err := book.RecordSell(ctx, user, mintA, 103, 1); !errors.Is(err, ErrNoPosition) {
		t.Errorf("selling a closed position: expected ErrNoPosition, got %v", err)
	}
}

func TestPositionBook_ApplyReEntry(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(memory.NewPositionStore(), nil)
	if _, err := book.Open(ctx, user, mintA, 100, 1, 3); err != nil {
		t.Fatal(err)
	}

	// Still active: legs not consumed.
	if ok, _ := book.ApplyReEntry(ctx, user, mintA, 90, true); ok {
		t.Fatalf("active position must not reset")
	}
	if _, err := book.Close(ctx, user, mintA, 103); err != nil {
		t.Fatal(err)
	}

	if ok, _ := book.ApplyReEntry(ctx, user, mintA, 101, true); ok {
		t.Errorf("price above entry must not reset")
	}
	if ok, _ := book.ApplyReEntry(ctx, user, mintA, 99, false); ok {
		t.Errorf("repeat disabled must not reset")
	}
	ok, err := book.ApplyReEntry(ctx, user, mintA, 100, true)
	if err != nil || !ok {
		t.Fatalf("expected reset at entry price, got ok=%v err=%v", ok, err)
	}

	p, _ := book.Get(ctx, user, mintA)
	if p.Status != domain.PositionWaiting {
		t.Errorf("status = %s, want waiting", p.Status)
	}
	if _, err := book.Open(ctx, user, mintA, 100, 1, 3); err != nil {
		t.Errorf("waiting position should reopen: %v", err)
	}
}
