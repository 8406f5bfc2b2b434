package ingestion

import (
	"encoding/csv"
	"io"
	"strconv"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/ledger"
	"solana-slot-sniper/internal/readiness"
)

// Experiment engine settings.
const (
	ExperimentWindowSlots = 5
	ExperimentDensity     = 3
	ExperimentStrongBits  = 2
)

// DefaultThresholds are swept when none are given.
var DefaultThresholds = []float64{0.5, 0.6, 0.7, 0.8}

// forcedLiquidity is the probe evidence assumed by the forced scenario.
const forcedLiquidity = domain.BitPoolExists | domain.BitPoolInit | domain.BitTransferable

// ThresholdRow is one line of the threshold sweep.
type ThresholdRow struct {
	Threshold            float64 `json:"threshold"`
	Total                int     `json:"total"`
	BaselineTriggers     int     `json:"baselineTriggers"`
	ForcedTriggers       int     `json:"forcedTriggers"`
	LedgerStrongTriggers int     `json:"ledgerStrongTriggers"`
}

// ExperimentOptions configures RunThresholdExperiment.
type ExperimentOptions struct {
	Thresholds []float64 // default DefaultThresholds
	Weights    readiness.Weights
	Classifier ledger.Classifier
}

// RunThresholdExperiment replays events through a fresh ledger engine once
// per threshold. Every fresh mint of every event is scored twice: with no
// probe evidence (baseline) and with pool and transferability forced on.
// LedgerStrongTriggers counts mints the strong ledger clause would flip
// once transferability is known.
func RunThresholdExperiment(events []*domain.RawEvent, opts ExperimentOptions) []ThresholdRow {
	thresholds := opts.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	weights := opts.Weights
	if len(weights.Probe) == 0 {
		weights = readiness.DefaultWeights()
	}

	engine := ledger.NewEngine(ledger.Options{
		WindowSlots:      ExperimentWindowSlots,
		DensityThreshold: ExperimentDensity,
		Classifier:       opts.Classifier,
	})

	rows := make([]ThresholdRow, 0, len(thresholds))
	for _, th := range thresholds {
		row := ThresholdRow{Threshold: th}
		engine.Reset()
		for _, ev := range events {
			engine.Ingest(ev)
			for _, m := range ev.FreshMints {
				row.Total++
				ledgerMask := engine.MaskFor(m)
				strong := engine.IsStrongSignal(m, ExperimentStrongBits)

				var baseline domain.Mask
				baselineHit := readiness.Decide(baseline, strong, readiness.Score(baseline, ledgerMask, weights), th)
				forcedHit := readiness.Decide(forcedLiquidity, strong, readiness.Score(forcedLiquidity, ledgerMask, weights), th)

				if baselineHit {
					row.BaselineTriggers++
				}
				if forcedHit {
					row.ForcedTriggers++
				}
				if strong && !baselineHit {
					row.LedgerStrongTriggers++
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteThresholdCSV writes rows with a header line.
func WriteThresholdCSV(w io.Writer, rows []ThresholdRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"threshold", "total", "baselineTriggers", "forcedTriggers", "ledgerStrongTriggers"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatFloat(r.Threshold, 'f', -1, 64),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.BaselineTriggers),
			strconv.Itoa(r.ForcedTriggers),
			strconv.Itoa(r.LedgerStrongTriggers),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
