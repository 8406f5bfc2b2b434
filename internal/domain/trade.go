package domain

// TradeRecord is the audit row emitted after every execution attempt,
// including failed and simulated ones.
// Corresponds to trade_records table in PostgreSQL.
type TradeRecord struct {
	TradeID   string  // deterministic hash
	UserID    string  // owning user key
	OrderID   string  // source pending order (empty for direct entries)
	Action    string  // "buy" | "sell"
	Entity    string  // mint address
	Amount    float64 // quantity
	Price     float64 // price at attempt
	Status    string  // TradeStatus*
	Reason    string  // trigger reason or error text
	CreatedAt int64   // ms
}

// Trade status codes
const (
	TradeStatusSuccess   = "success"
	TradeStatusFail      = "fail"
	TradeStatusTriggered = "triggered"
	TradeStatusSimulated = "simulated"
)

// Trade actions
const (
	TradeActionBuy  = "buy"
	TradeActionSell = "sell"
)

// ActionFor maps an order kind to its trade action.
func ActionFor(k OrderKind) string {
	if k == OrderKindBuy {
		return TradeActionBuy
	}
	return TradeActionSell
}
