package domain

// RawEvent is a single program event as seen by the signal engine.
// Slot is required; events without a resolvable slot are dropped upstream.
type RawEvent struct {
	Slot       int64    `json:"slot"`
	Kind       string   `json:"kind"`
	FreshMints []string `json:"freshMints"`
	Authority  string   `json:"authority,omitempty"` // actor that touched the mints (nullable)
	Signature  string   `json:"signature,omitempty"`
	SampleLogs []string `json:"sampleLogs,omitempty"`
}

// HasSlot reports whether the event carries a usable slot.
func (e *RawEvent) HasSlot() bool {
	return e != nil && e.Slot > 0
}
