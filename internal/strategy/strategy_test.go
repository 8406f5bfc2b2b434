package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/orders"
	"solana-slot-sniper/internal/storage/memory"
)

const (
	testUser = "user-1"
	testMint = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

// entrySeries is an uptrending zigzag that breaks down over the last three
// ticks: RSI makes fresh lows, K drops under D and the close sits at the
// 14-tick low.
func entrySeries() []float64 {
	prices := []float64{100}
	for i := 0; i < 36; i++ {
		step := 2.0
		if i%2 == 1 {
			step = -1
		}
		prices = append(prices, prices[len(prices)-1]+step)
	}
	for _, step := range []float64{-3, -3.5, -4} {
		prices = append(prices, prices[len(prices)-1]+step)
	}
	return prices
}

// risingSeries climbs every tick, so Williams %R reads 0.
func risingSeries() []float64 {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	return prices
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"too short", []float64{1, 2, 3}, 50},
		{"only gains", risingSeries(), 100},
		{"only losses", []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6}, 0},
		{"balanced", []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RSI(tt.prices, 14); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RSI = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestRSI_PlainMeans(t *testing.T) {
	// Last two changes: +1 gain, -10 loss. A Wilder-smoothed RSI would also
	// weigh the earlier +10 and read higher.
	prices := []float64{10, 20, 10, 11}
	want := 100 - 100/(1+1.0/10)
	if got := RSI(prices, 2); math.Abs(got-want) > 1e-9 {
		t.Errorf("RSI = %.4f, want %.4f", got, want)
	}

	rolling := rollingRSI(prices, 2)
	if len(rolling) != 2 {
		t.Fatalf("rollingRSI len = %d, want 2", len(rolling))
	}
	if math.Abs(rolling[0]-50) > 1e-9 || math.Abs(rolling[1]-want) > 1e-9 {
		t.Errorf("rollingRSI = %v", rolling)
	}
}

func TestWilliamsR(t *testing.T) {
	if got := WilliamsR([]float64{1, 2}, 14); got != -50 {
		t.Errorf("short history should be neutral, got %v", got)
	}
	flat := make([]float64, 14)
	for i := range flat {
		flat[i] = 5
	}
	if got := WilliamsR(flat, 14); got != 0 {
		t.Errorf("flat window should read 0, got %v", got)
	}
	if got := WilliamsR(risingSeries(), 14); math.Abs(got) > 1e-9 {
		t.Errorf("close at high should read 0, got %v", got)
	}
	if got := WilliamsR(entrySeries(), 14); math.Abs(got-100) > 1e-9 {
		t.Errorf("close at low should read 100, got %v", got)
	}
}

func TestStochRSI(t *testing.T) {
	if got := StochRSI([]float64{1, 2, 3}, 14, 14, 3, 3); got.K != 50 || got.D != 50 || got.J != 50 {
		t.Errorf("short history should be neutral, got %+v", got)
	}

	st := StochRSI(entrySeries(), RSIPeriod, StochPeriod, StochKPeriod, StochDPeriod)
	if st.K > 1e-6 {
		t.Errorf("K = %.4f, want 0", st.K)
	}
	if math.Abs(st.D-50.0/3) > 1e-6 {
		t.Errorf("D = %.4f, want 16.6667", st.D)
	}
	if math.Abs(st.J-(3*st.K-2*st.D)) > 1e-9 {
		t.Errorf("J must equal 3K-2D: %+v", st)
	}
}

func TestMatchesEntry(t *testing.T) {
	cfg := DefaultConfig()
	if !MatchesEntry(entrySeries(), cfg) {
		t.Errorf("entry series should match")
	}
	if MatchesEntry(risingSeries(), cfg) {
		t.Errorf("rising series should not match")
	}
	if MatchesEntry(entrySeries()[:39], cfg) {
		t.Errorf("fewer than 40 ticks must not match")
	}
}

func TestEvaluate_MatchingTimeframes(t *testing.T) {
	tests := []struct {
		name    string
		matches int
		want    Action
	}{
		{"4 of 4 buys", 4, ActionBuy},
		{"3 of 4 buys", 3, ActionBuy},
		{"2 of 4 waits", 2, ActionWait},
		{"0 of 4 waits", 0, ActionWait},
	}
	cfg := DefaultConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := make(map[string][]float64)
			for i, tf := range cfg.Timeframes {
				if i < tt.matches {
					history[tf] = entrySeries()
				} else {
					history[tf] = risingSeries()
				}
			}
			// The primary timeframe sets the price either way.
			d, err := Evaluate(history, 10, nil, cfg)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if d.Action != tt.want {
				t.Errorf("action = %s (%s), want %s", d.Action, d.Reason, tt.want)
			}
			if d.MatchCount != tt.matches {
				t.Errorf("match count = %d, want %d", d.MatchCount, tt.matches)
			}
			if tt.want == ActionBuy && math.Abs(d.Amount-1.0) > 1e-9 {
				t.Errorf("amount = %v, want 10%% of balance", d.Amount)
			}
		})
	}
}

func TestEvaluate_Positions(t *testing.T) {
	cfg := DefaultConfig()
	history := func(price float64) map[string][]float64 {
		return map[string][]float64{"5m": {price}}
	}
	lastSell := 100.0

	tests := []struct {
		name  string
		price float64
		pos   *domain.Position
		want  Action
	}{
		{"take profit", 102, &domain.Position{Status: domain.PositionActive, EntryPrice: 100, Quantity: 3}, ActionSell},
		{"above range holds", 105, &domain.Position{Status: domain.PositionActive, EntryPrice: 100}, ActionWait},
		{"below range holds", 100.5, &domain.Position{Status: domain.PositionActive, EntryPrice: 100}, ActionWait},
		{"reinvest after drop", 97, &domain.Position{Status: domain.PositionClosed, EntryPrice: 95, LastSellPrice: &lastSell}, ActionReinvest},
		{"no reinvest above drop", 98, &domain.Position{Status: domain.PositionClosed, EntryPrice: 95, LastSellPrice: &lastSell}, ActionWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Evaluate(history(tt.price), 10, tt.pos, cfg)
			if err != nil {
				t.Fatal(err)
			}
			if d.Action != tt.want {
				t.Errorf("action = %s (%s), want %s", d.Action, d.Reason, tt.want)
			}
			if tt.want == ActionSell && d.Amount != tt.pos.Quantity {
				t.Errorf("sell amount = %v, want position quantity", d.Amount)
			}
		})
	}
}

func TestEvaluate_NoHistory(t *testing.T) {
	if _, err := Evaluate(map[string][]float64{}, 10, nil, DefaultConfig()); !errors.Is(err, ErrNoPriceHistory) {
		t.Errorf("expected ErrNoPriceHistory, got %v", err)
	}
}

func TestAnalyzer_OpensAndClosesPositions(t *testing.T) {
	ctx := context.Background()
	book := orders.NewPositionBook(memory.NewPositionStore(), nil)
	a := NewAnalyzer(book, Config{}, nil)

	history := map[string][]float64{}
	for _, tf := range DefaultConfig().Timeframes {
		history[tf] = entrySeries()
	}
	entry := entrySeries()[39]

	d, err := a.Analyze(ctx, testUser, testMint, 100, history)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.Action != ActionBuy {
		t.Fatalf("expected BUY, got %s", d.Action)
	}
	pos, err := book.Get(ctx, testUser, testMint)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.IsOpen() || pos.EntryPrice != entry || pos.MatchingTimeframes != 4 {
		t.Errorf("unexpected position after BUY: %+v", pos)
	}
	if math.Abs(pos.Quantity-10/entry) > 1e-9 {
		t.Errorf("quantity = %v, want capital/price", pos.Quantity)
	}

	// Same signal again: in position and outside the TP range, so hold.
	if d, _ := a.Analyze(ctx, testUser, testMint, 100, history); d.Action != ActionWait {
		t.Errorf("second analysis should WAIT, got %s", d.Action)
	}

	d, err = a.Analyze(ctx, testUser, testMint, 100, map[string][]float64{"5m": {entry * 1.02}})
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionSell {
		t.Fatalf("expected SELL at +2%%, got %s", d.Action)
	}
	pos, _ = book.Get(ctx, testUser, testMint)
	if pos.Status != domain.PositionClosed {
		t.Errorf("position should be closed, got %s", pos.Status)
	}
}
