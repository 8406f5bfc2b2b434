package idhash

import (
	"testing"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		orderID   string
		entity    string
		action    string
		createdAt int64
	}{
		{
			name:      "follow-up sell",
			userID:    "user-1",
			orderID:   "6f1c2d0e-8a55-4b47-9d64-3c1d7e0f9a12",
			entity:    "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
			action:    "sell",
			createdAt: 1704067234567,
		},
		{
			name:      "direct entry",
			userID:    "user-2",
			orderID:   "",
			entity:    "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
			action:    "buy",
			createdAt: 1704067300000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.userID, tt.orderID, tt.entity, tt.action, tt.createdAt)

			if len(got) != 64 {
				t.Errorf("ComputeTradeID() length = %d, want 64", len(got))
			}

			got2 := ComputeTradeID(tt.userID, tt.orderID, tt.entity, tt.action, tt.createdAt)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_DifferentInputs(t *testing.T) {
	a := ComputeTradeID("user-1", "order-1", "mint", "sell", 1000)
	b := ComputeTradeID("user-1", "order-1", "mint", "sell", 1001)
	c := ComputeTradeID("user-1", "order-2", "mint", "sell", 1000)

	if a == b || a == c || b == c {
		t.Errorf("different inputs produced colliding IDs")
	}
}
