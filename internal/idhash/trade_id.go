package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(user_id|order_id|entity|action|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	userID string,
	orderID string,
	entity string,
	action string,
	createdAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		userID,
		orderID,
		entity,
		action,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
