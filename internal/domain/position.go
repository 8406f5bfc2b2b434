package domain

// PositionStatus is the state of a per (user, entity) trade.
type PositionStatus string

const (
	PositionWaiting PositionStatus = "waiting"
	PositionActive  PositionStatus = "active"
	PositionClosed  PositionStatus = "closed"
)

// Position is an open or historical trade for one user on one entity.
// Corresponds to positions table in PostgreSQL, keyed by (user_id, entity).
type Position struct {
	UserID             string
	Entity             string
	EntryPrice         float64
	EntryTime          int64 // ms
	Quantity           float64
	Status             PositionStatus
	MatchingTimeframes int      // matching-evidence count at entry
	LastSellPrice      *float64 // nullable
	UpdatedAt          int64    // ms
}

// IsOpen reports whether the position blocks a new entry.
func (p *Position) IsOpen() bool {
	return p != nil && p.Status == PositionActive
}
