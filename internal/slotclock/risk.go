package slotclock

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMinLiquidityUSD is the minimum pool liquidity accepted by RiskEngine.
const DefaultMinLiquidityUSD = 5000

// LaunchState is the pre-slot view of a token launch.
type LaunchState struct {
	Entity          string  `json:"entity"`
	LiquidityUSD    float64 `json:"liquidityUsd"`
	PoolInitialized bool    `json:"poolInitialized"`
	Transferable    bool    `json:"transferable"`
	MintAuthority   bool    `json:"mintAuthority"`
	FreezeAuthority bool    `json:"freezeAuthority"`
	UpdateAuthority bool    `json:"updateAuthority"`
}

// RiskEngine gates execution on launch safety thresholds.
type RiskEngine struct {
	MinLiquidityUSD float64
}

// NewRiskEngine creates a RiskEngine. Non-positive minLiquidity uses the default.
func NewRiskEngine(minLiquidity float64) *RiskEngine {
	if minLiquidity <= 0 {
		minLiquidity = DefaultMinLiquidityUSD
	}
	return &RiskEngine{MinLiquidityUSD: minLiquidity}
}

// Evaluate reports whether the launch passes every risk check.
// Update authority is informational only.
func (r *RiskEngine) Evaluate(s LaunchState) bool {
	floor := float64(DefaultMinLiquidityUSD)
	if r != nil && r.MinLiquidityUSD > 0 {
		floor = r.MinLiquidityUSD
	}
	switch {
	case s.LiquidityUSD < floor:
		return false
	case s.MintAuthority || s.FreezeAuthority:
		return false
	case !s.PoolInitialized:
		return false
	case !s.Transferable:
		return false
	}
	return true
}

// ExecutionGraph carries the pre-computed execution decision for a slot.
// Trigger is a pure signal: it records that the slot arrived and hands the
// decision to OnFire.
type ExecutionGraph struct {
	Allowed bool
	OnFire  func(allowed bool)
	Logger  *zerolog.Logger

	mu    sync.Mutex
	fired int
}

// NewExecutionGraph creates a graph with the given decision.
func NewExecutionGraph(allowed bool, onFire func(bool)) *ExecutionGraph {
	return &ExecutionGraph{Allowed: allowed, OnFire: onFire}
}

// Trigger signals slot arrival.
func (g *ExecutionGraph) Trigger() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.fired++
	g.mu.Unlock()

	if g.Logger != nil {
		if g.Allowed {
			g.Logger.Info().Msg("execution triggered")
		} else {
			g.Logger.Warn().Msg("execution blocked by risk engine")
		}
	}
	if g.OnFire != nil {
		g.OnFire(g.Allowed)
	}
}

// Fired returns how many times Trigger was called.
func (g *ExecutionGraph) Fired() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// PreSlotAnalysis evaluates state ahead of the target slot.
// A nil risk engine uses the default thresholds.
func PreSlotAnalysis(state LaunchState, risk *RiskEngine) *ExecutionGraph {
	if risk == nil {
		risk = NewRiskEngine(0)
	}
	return &ExecutionGraph{Allowed: risk.Evaluate(state)}
}
