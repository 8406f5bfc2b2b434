package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"solana-slot-sniper/internal/slotclock"
)

type simulation struct {
	BaseSlot   int64                 `json:"baseSlot"`
	TargetSlot int64                 `json:"targetSlot"`
	State      slotclock.LaunchState `json:"state"`
	Allowed    bool                  `json:"allowed"`
	Arrival    *slotclock.Arrival    `json:"arrival,omitempty"`
	Missed     bool                  `json:"missed,omitempty"`
	WaitedMs   int64                 `json:"waitedMs"`
}

func simulateCmd(a *app) *cobra.Command {
	var (
		baseSlot int64
		offset   int64
		state    slotclock.LaunchState
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run pre-slot risk analysis and wait for a target slot on a local clock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			logger := a.logger("simulate")

			clock := slotclock.NewSlotClock(baseSlot, slotclock.WithSlotDuration(cfg.Scheduler.SlotDuration()))
			graph := slotclock.PreSlotAnalysis(state, slotclock.NewRiskEngine(cfg.Risk.MinLiquidityUSD))
			graph.Logger = logger

			res := simulation{
				BaseSlot:   baseSlot,
				TargetSlot: clock.CurrentSlot() + offset,
				State:      state,
				Allowed:    graph.Allowed,
			}
			start := time.Now()
			arrival, err := slotclock.WaitForSlot(cmd.Context(), clock, res.TargetSlot, graph, slotclock.WaitOptions{
				TriggerWindow: cfg.Scheduler.TriggerWindow(),
				PollInterval:  cfg.Scheduler.PollInterval(),
				Logger:        logger,
			})
			res.WaitedMs = time.Since(start).Milliseconds()
			switch {
			case errors.Is(err, slotclock.ErrSlotPassed):
				res.Missed = true
			case err != nil:
				return err
			default:
				res.Arrival = &arrival
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&baseSlot, "base-slot", 0, "slot at process start")
	f.Int64Var(&offset, "target-offset", 3, "slots ahead of the current slot to fire at")
	f.StringVar(&state.Entity, "entity", "", "mint address, informational")
	f.Float64Var(&state.LiquidityUSD, "liquidity", 10_000, "pool liquidity in USD")
	f.BoolVar(&state.PoolInitialized, "pool-initialized", true, "pool has been initialized")
	f.BoolVar(&state.Transferable, "transferable", true, "token is transferable")
	f.BoolVar(&state.MintAuthority, "mint-authority", false, "mint authority still set")
	f.BoolVar(&state.FreezeAuthority, "freeze-authority", false, "freeze authority still set")
	return cmd
}
