package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"solana-slot-sniper/internal/ingestion"
	"solana-slot-sniper/internal/ledger"
	"solana-slot-sniper/internal/readiness"
	"solana-slot-sniper/internal/storage/memory"
)

func replayCmd(a *app) *cobra.Command {
	var (
		input      string
		output     string
		thresholds []float64
		pipeline   bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded JSONL events through the ledger",
		Long: "Without --pipeline, runs the threshold experiment and prints one CSV row per threshold.\n" +
			"With --pipeline, feeds the events through the runner on ledger evidence alone and prints fired triggers as JSON lines.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := io.Writer(os.Stdout)
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			if pipeline {
				return a.replayPipeline(cmd.Context(), input, out)
			}
			return a.replayExperiment(input, thresholds, out)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSONL event file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", ingestion.DefaultThresholds, "readiness thresholds to compare")
	cmd.Flags().BoolVar(&pipeline, "pipeline", false, "run the full runner instead of the experiment")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) replayExperiment(input string, thresholds []float64, out io.Writer) error {
	logger := a.logger("replay")

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	events, stats, err := ingestion.ReadEvents(f)
	if err != nil {
		return err
	}
	logger.Info().Int("lines", stats.Lines).Int("malformed", stats.Malformed).Int("events", len(events)).Msg("events loaded")

	rows := ingestion.RunThresholdExperiment(events, ingestion.ExperimentOptions{Thresholds: thresholds})
	return ingestion.WriteThresholdCSV(out, rows)
}

func (a *app) replayPipeline(ctx context.Context, input string, out io.Writer) error {
	cfg := a.cfg
	logger := a.logger("replay")

	engine := ledger.NewEngine(ledger.Options{
		WindowSlots:      cfg.Ledger.Window,
		DensityThreshold: cfg.Ledger.Density,
		AlignmentSpan:    cfg.Ledger.Alignment,
		MaxFreshMints:    cfg.Ledger.MaxFreshMints,
		Logger:           logger,
	})
	watcher := readiness.NewWatcher(readiness.WatcherOptions{
		Signals:       engine,
		Threshold:     cfg.Readiness.Threshold,
		MinLedgerBits: cfg.Readiness.MinLedgerBits,
		Logger:        logger,
	})
	triggers := memory.NewTriggerStore()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:        ingestion.NewReplaySource(ingestion.ReplayOptions{Path: input, Logger: logger}),
		Engine:        engine,
		Watcher:       watcher,
		Triggers:      triggers,
		SlotLagWindow: cfg.Ingest.SlotLag,
		Logger:        logger,
	})
	if err := runner.Run(ctx); err != nil {
		return err
	}

	stats := runner.Stats()
	all, err := triggers.GetBySlotRange(ctx, 0, math.MaxInt64)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, t := range all {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	logger.Info().Interface("stats", stats).Int("triggers", len(all)).Msg("replay complete")
	return nil
}
