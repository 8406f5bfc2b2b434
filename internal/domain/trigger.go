package domain

// Trigger is the one-shot decision authorizing an entry for an entity.
// Corresponds to the readiness_triggers table in ClickHouse.
type Trigger struct {
	TriggerID   string   `json:"triggerId"`   // deterministic hash of entity + slot
	Entity      string   `json:"entity"`      // mint address
	Slot        int64    `json:"slot"`        // slot at which the decision was reached
	MaskBits    []string `json:"maskBits"`    // names of set evidence bits
	ProbeMask   Mask     `json:"probeMask"`   // probe bits at decision time
	LedgerMask  Mask     `json:"ledgerMask"`  // ledger bits at decision time
	Score       float64  `json:"score"`       // readiness score in [0,1]
	TriggeredAt int64    `json:"triggeredAt"` // Unix timestamp in milliseconds
}
