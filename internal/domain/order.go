package domain

// OrderKind is the side of a pending conditional order.
type OrderKind string

const (
	OrderKindBuy      OrderKind = "buy"
	OrderKindSell     OrderKind = "sell"
	OrderKindStopLoss OrderKind = "stoploss"
)

// IsValid checks if the kind is a known value.
func (k OrderKind) IsValid() bool {
	return k == OrderKindBuy || k == OrderKindSell || k == OrderKindStopLoss
}

// OrderStatus is the lifecycle state of a pending order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusTriggered OrderStatus = "triggered"
	OrderStatusExecuted  OrderStatus = "executed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PendingOrder is a conditional follow-up action awaiting a price crossing.
// Corresponds to pending_orders table in PostgreSQL.
type PendingOrder struct {
	OrderID      string      `json:"id"`
	UserID       string      `json:"userId"`
	Entity       string      `json:"token"`
	Kind         OrderKind   `json:"type"`
	TriggerPrice float64     `json:"triggerPrice"`
	Amount       float64     `json:"amount"`
	CreatedAt    int64       `json:"createdAt"` // ms
	Status       OrderStatus `json:"status"`
	Reason       string      `json:"reason,omitempty"`

	// Settlement metadata, set once status leaves pending.
	ExecutedPrice  *float64 `json:"executedPrice,omitempty"`
	ExecutedAt     *int64   `json:"executedAt,omitempty"`
	TriggeredPrice *float64 `json:"triggeredPrice,omitempty"`
	TriggeredAt    *int64   `json:"triggeredAt,omitempty"`
}

// Matches reports whether price crosses the order's trigger.
// Buys fill at or below the trigger; sells and stop-losses at or above.
func (o *PendingOrder) Matches(price float64) bool {
	if price <= 0 {
		return false
	}
	switch o.Kind {
	case OrderKindBuy:
		return price <= o.TriggerPrice
	case OrderKindSell, OrderKindStopLoss:
		return price >= o.TriggerPrice
	default:
		return false
	}
}
