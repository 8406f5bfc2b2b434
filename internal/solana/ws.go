package solana

import "context"

// WSClient streams program logs over a websocket subscription.
type WSClient interface {
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)
	Close() error
}

// LogsFilter selects which logs a subscription receives. An empty
// Mentions list subscribes to all logs.
type LogsFilter struct {
	Mentions   []string
	Commitment string // default "confirmed"
}

func (f LogsFilter) params() []interface{} {
	var sel interface{} = "all"
	if len(f.Mentions) > 0 {
		sel = map[string][]string{"mentions": f.Mentions}
	}
	commitment := f.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}
	return []interface{}{sel, map[string]string{"commitment": commitment}}
}

// LogNotification is one logsNotification payload. Slot is zero when the
// notification carried no context.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
