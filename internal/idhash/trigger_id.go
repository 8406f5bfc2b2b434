// Package idhash derives deterministic identifiers from record contents.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTriggerID computes a deterministic trigger_id using SHA256.
// Formula: SHA256(entity|slot)
// Returns hex-encoded hash (64 characters).
func ComputeTriggerID(entity string, slot int64) string {
	data := fmt.Sprintf("%s|%d", entity, slot)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
