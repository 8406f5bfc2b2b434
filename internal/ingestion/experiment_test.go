package ingestion

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-slot-sniper/internal/domain"
)

func experimentEvents() []*domain.RawEvent {
	return []*domain.RawEvent{
		{Slot: 100, Kind: "swap", FreshMints: []string{mintA}},
		{Slot: 101, Kind: "initialize_pool", FreshMints: []string{mintB}},
		{Kind: "initialize_pool", FreshMints: []string{creator}},
	}
}

func TestRunThresholdExperiment(t *testing.T) {
	rows := RunThresholdExperiment(experimentEvents(), ExperimentOptions{Thresholds: []float64{0.4, 0.9}})
	require.Len(t, rows, 2)

	// Without probe evidence nothing is transferable, so baseline never fires.
	assert.Equal(t, ThresholdRow{Threshold: 0.4, Total: 3, BaselineTriggers: 0, ForcedTriggers: 3, LedgerStrongTriggers: 1}, rows[0])
	// Only the ledger-strong mint survives a high threshold.
	assert.Equal(t, ThresholdRow{Threshold: 0.9, Total: 3, BaselineTriggers: 0, ForcedTriggers: 1, LedgerStrongTriggers: 1}, rows[1])
}

func TestRunThresholdExperiment_Deterministic(t *testing.T) {
	a := RunThresholdExperiment(experimentEvents(), ExperimentOptions{})
	b := RunThresholdExperiment(experimentEvents(), ExperimentOptions{})
	assert.Equal(t, a, b)
	assert.Len(t, a, len(DefaultThresholds))
}

func TestWriteThresholdCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteThresholdCSV(&buf, []ThresholdRow{
		{Threshold: 0.5, Total: 10, BaselineTriggers: 1, ForcedTriggers: 4, LedgerStrongTriggers: 2},
	}))
	assert.Equal(t, "threshold,total,baselineTriggers,forcedTriggers,ledgerStrongTriggers\n0.5,10,1,4,2\n", buf.String())
}
