// Package strategy decides entries and exits from multi-timeframe price
// history and runs the staged take-profit ladder.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/orders"
)

// Action is the outcome of one analysis.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionWait     Action = "WAIT"
	ActionReinvest Action = "REINVEST"
)

// Indicator periods
const (
	RSIPeriod       = 14
	StochPeriod     = 14
	StochKPeriod    = 3
	StochDPeriod    = 3
	WilliamsPeriod  = 14
	DefaultMinTicks = 40
)

// ErrNoPriceHistory is returned when the primary timeframe has no prices.
var ErrNoPriceHistory = errors.New("no price history")

// EntryConditions are the per-timeframe entry thresholds.
type EntryConditions struct {
	StochJMax    float64 `mapstructure:"stoch_j_max" yaml:"stoch_j_max"`
	StochKMax    float64 `mapstructure:"stoch_k_max" yaml:"stoch_k_max"`
	WilliamsRMin float64 `mapstructure:"williams_r_min" yaml:"williams_r_min"`
}

// Config configures the multi-timeframe strategy.
type Config struct {
	Timeframes            []string        `mapstructure:"timeframes" yaml:"timeframes"` // first is primary
	CapitalPercent        float64         `mapstructure:"capital_percent" yaml:"capital_percent"`
	MinMatchingTimeframes int             `mapstructure:"min_matching_timeframes" yaml:"min_matching_timeframes"`
	TPMin                 float64         `mapstructure:"tp_min" yaml:"tp_min"`
	TPMax                 float64         `mapstructure:"tp_max" yaml:"tp_max"`
	ReinvestLoss          float64         `mapstructure:"reinvest_loss" yaml:"reinvest_loss"` // negative
	MinTicks              int             `mapstructure:"min_ticks" yaml:"min_ticks"`
	Entry                 EntryConditions `mapstructure:"entry" yaml:"entry"`
}

// DefaultConfig returns the default strategy configuration.
func DefaultConfig() Config {
	return Config{
		Timeframes:            []string{"5m", "15m", "4h", "8h"},
		CapitalPercent:        0.10,
		MinMatchingTimeframes: 3,
		TPMin:                 0.01,
		TPMax:                 0.03,
		ReinvestLoss:          -0.03,
		MinTicks:              DefaultMinTicks,
		Entry: EntryConditions{
			StochJMax:    10,
			StochKMax:    30,
			WilliamsRMin: 80,
		},
	}
}

// Decision is the result of one analysis.
type Decision struct {
	Action     Action   `json:"action"`
	Price      float64  `json:"price"`
	Amount     float64  `json:"amount"`
	Reason     string   `json:"reason"`
	MatchCount int      `json:"matchCount"`
	Matched    []string `json:"matched,omitempty"`
}

// MatchesEntry reports whether one timeframe's history meets every entry
// condition: J below its max, K below its max and below D, and inverted
// Williams %R above its min.
func MatchesEntry(prices []float64, cfg Config) bool {
	minTicks := cfg.MinTicks
	if minTicks <= 0 {
		minTicks = DefaultMinTicks
	}
	if len(prices) < minTicks {
		return false
	}

	st := StochRSI(prices, RSIPeriod, StochPeriod, StochKPeriod, StochDPeriod)
	wr := WilliamsR(prices, WilliamsPeriod)

	return st.J < cfg.Entry.StochJMax &&
		st.K < cfg.Entry.StochKMax && st.K < st.D &&
		wr > cfg.Entry.WilliamsRMin
}

// Evaluate decides an action from history keyed by timeframe and the
// current position, which may be nil. It has no side effects.
func Evaluate(history map[string][]float64, balance float64, pos *domain.Position, cfg Config) (Decision, error) {
	if len(cfg.Timeframes) == 0 {
		return Decision{}, fmt.Errorf("evaluate: no timeframes configured")
	}
	primary := history[cfg.Timeframes[0]]
	if len(primary) == 0 {
		return Decision{}, fmt.Errorf("timeframe %s: %w", cfg.Timeframes[0], ErrNoPriceHistory)
	}
	price := primary[len(primary)-1]

	var matched []string
	for _, tf := range cfg.Timeframes {
		if MatchesEntry(history[tf], cfg) {
			matched = append(matched, tf)
		}
	}
	d := Decision{Price: price, MatchCount: len(matched), Matched: matched}
	total := len(cfg.Timeframes)

	if pos.IsOpen() {
		change := (price - pos.EntryPrice) / pos.EntryPrice
		if change >= cfg.TPMin && change <= cfg.TPMax {
			d.Action = ActionSell
			d.Amount = pos.Quantity
			d.Reason = fmt.Sprintf("Take Profit at +%.2f%%", change*100)
			return d, nil
		}
		d.Action = ActionWait
		d.Reason = fmt.Sprintf("Position active: %+.2f%% (TP: %.1f-%.1f%%)", change*100, cfg.TPMin*100, cfg.TPMax*100)
		return d, nil
	}

	if pos != nil && pos.LastSellPrice != nil && price <= *pos.LastSellPrice*(1+cfg.ReinvestLoss) {
		d.Action = ActionReinvest
		d.Amount = balance * cfg.CapitalPercent
		d.Reason = fmt.Sprintf("Re-entry at -%.1f%% from last sell", -cfg.ReinvestLoss*100)
		return d, nil
	}

	if len(matched) >= cfg.MinMatchingTimeframes {
		d.Action = ActionBuy
		d.Amount = balance * cfg.CapitalPercent
		d.Reason = fmt.Sprintf("%d/%d timeframes matched entry conditions: %s", len(matched), total, strings.Join(matched, ", "))
		return d, nil
	}

	d.Action = ActionWait
	d.Reason = fmt.Sprintf("Only %d/%d timeframes match conditions (need %d)", len(matched), total, cfg.MinMatchingTimeframes)
	return d, nil
}

// Analyzer runs Evaluate against the position book and applies the result.
type Analyzer struct {
	book   *orders.PositionBook
	cfg    Config
	logger zerolog.Logger
}

// NewAnalyzer creates an Analyzer. A zero Config uses DefaultConfig.
func NewAnalyzer(book *orders.PositionBook, cfg Config, logger *zerolog.Logger) *Analyzer {
	if len(cfg.Timeframes) == 0 {
		cfg = DefaultConfig()
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Analyzer{
		book:   book,
		cfg:    cfg,
		logger: l.With().Str("component", "strategy").Logger(),
	}
}

// Analyze evaluates entity for userID and records the resulting entry or
// exit in the position book. Amounts are in quote currency; positions hold
// amount/price units.
func (a *Analyzer) Analyze(ctx context.Context, userID, entity string, balance float64, history map[string][]float64) (Decision, error) {
	pos, err := a.book.Get(ctx, userID, entity)
	if err != nil && !errors.Is(err, orders.ErrNoPosition) {
		return Decision{}, err
	}

	d, err := Evaluate(history, balance, pos, a.cfg)
	if err != nil {
		return Decision{}, err
	}

	switch d.Action {
	case ActionBuy, ActionReinvest:
		if d.Amount <= 0 || d.Price <= 0 {
			d.Action = ActionWait
			d.Reason = "no capital to enter"
			break
		}
		if _, err := a.book.Open(ctx, userID, entity, d.Price, d.Amount/d.Price, d.MatchCount); err != nil {
			return d, fmt.Errorf("open position: %w", err)
		}
	case ActionSell:
		if _, err := a.book.Close(ctx, userID, entity, d.Price); err != nil {
			return d, fmt.Errorf("close position: %w", err)
		}
	}

	a.logger.Debug().
		Str("user", userID).
		Str("entity", entity).
		Str("action", string(d.Action)).
		Int("matches", d.MatchCount).
		Msg(d.Reason)
	return d, nil
}
