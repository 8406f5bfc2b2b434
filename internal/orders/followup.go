// Package orders manages the conditional follow-up orders opened after an
// entry fill, their matching against current prices, and per-user positions.
package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-slot-sniper/internal/domain"
)

// Follow-up defaults
const (
	DefaultTPMin              = 0.01
	DefaultTPMax              = 0.03
	DefaultStopPct            = 0.03
	DefaultTakeProfitFraction = 0.5

	pricePlaces = 9
)

// FollowUpConfig sets the take-profit and stop-loss legs derived from an entry.
// Zero fields use the defaults.
type FollowUpConfig struct {
	TPMin              float64 `mapstructure:"tp_min" yaml:"tp_min"`
	TPMax              float64 `mapstructure:"tp_max" yaml:"tp_max"`
	StopPct            float64 `mapstructure:"stop_pct" yaml:"stop_pct"`
	TakeProfitFraction float64 `mapstructure:"take_profit_fraction" yaml:"take_profit_fraction"`
}

// DefaultFollowUpConfig returns the default leg configuration.
func DefaultFollowUpConfig() FollowUpConfig {
	return FollowUpConfig{
		TPMin:              DefaultTPMin,
		TPMax:              DefaultTPMax,
		StopPct:            DefaultStopPct,
		TakeProfitFraction: DefaultTakeProfitFraction,
	}
}

func (c FollowUpConfig) withDefaults() FollowUpConfig {
	if c.TPMin <= 0 {
		c.TPMin = DefaultTPMin
	}
	if c.TPMax <= 0 {
		c.TPMax = DefaultTPMax
	}
	if c.StopPct <= 0 || c.StopPct >= 1 {
		c.StopPct = DefaultStopPct
	}
	if c.TakeProfitFraction <= 0 || c.TakeProfitFraction > 1 {
		c.TakeProfitFraction = DefaultTakeProfitFraction
	}
	return c
}

// CreateFollowUpOrders derives the follow-up legs for one entry fill:
// two take-profit sells at entry*(1+TPMin) and entry*(1+TPMax), each for
// TakeProfitFraction of quantity, and a stop-loss at entry*(1-StopPct) for
// the full quantity. Returns nil for a non-positive price or quantity.
func CreateFollowUpOrders(userID, entity string, entryPrice, quantity float64, cfg FollowUpConfig, now time.Time) []*domain.PendingOrder {
	if entryPrice <= 0 || quantity <= 0 {
		return nil
	}
	cfg = cfg.withDefaults()

	entry := decimal.NewFromFloat(entryPrice)
	qty := decimal.NewFromFloat(quantity)
	one := decimal.NewFromInt(1)
	partial := qty.Mul(decimal.NewFromFloat(cfg.TakeProfitFraction)).Round(pricePlaces).InexactFloat64()
	createdAt := now.UnixMilli()

	leg := func(kind domain.OrderKind, factor decimal.Decimal, amount float64, reason string) *domain.PendingOrder {
		return &domain.PendingOrder{
			OrderID:      uuid.NewString(),
			UserID:       userID,
			Entity:       entity,
			Kind:         kind,
			TriggerPrice: entry.Mul(factor).Round(pricePlaces).InexactFloat64(),
			Amount:       amount,
			CreatedAt:    createdAt,
			Status:       domain.OrderStatusPending,
			Reason:       reason,
		}
	}

	return []*domain.PendingOrder{
		leg(domain.OrderKindSell, one.Add(decimal.NewFromFloat(cfg.TPMin)), partial,
			fmt.Sprintf("Take Profit 1: +%s%%", percent(cfg.TPMin))),
		leg(domain.OrderKindSell, one.Add(decimal.NewFromFloat(cfg.TPMax)), partial,
			fmt.Sprintf("Take Profit 2: +%s%%", percent(cfg.TPMax))),
		leg(domain.OrderKindStopLoss, one.Sub(decimal.NewFromFloat(cfg.StopPct)), quantity,
			fmt.Sprintf("Stop Loss: -%s%%", percent(cfg.StopPct))),
	}
}

// percent renders a fraction as a percentage with one decimal.
func percent(f float64) string {
	return decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).StringFixed(1)
}
