// Package readiness combines probe and ledger evidence into a readiness
// score and a one-shot trigger decision per entity.
package readiness

import (
	"errors"
	"fmt"
	"math"

	"solana-slot-sniper/internal/domain"
)

// DefaultThreshold is the score at or above which a transferable entity triggers.
const DefaultThreshold = 0.80

// ErrInvalidWeights is returned when probe weights do not sum to 1.0.
var ErrInvalidWeights = errors.New("invalid readiness weights")

// Weights maps evidence bits to score contributions.
type Weights struct {
	Probe  map[domain.Mask]float64 // probe bit -> weight, sums to 1.0
	Ledger map[domain.Mask]float64 // ledger bit -> boost
}

// DefaultWeights returns the standard probe weights and ledger boosts.
func DefaultWeights() Weights {
	return Weights{
		Probe: map[domain.Mask]float64{
			domain.BitMintExists:   0.20,
			domain.BitAuthorityOK:  0.20,
			domain.BitPoolExists:   0.15,
			domain.BitPoolInit:     0.15,
			domain.BitTransferable: 0.20,
			domain.BitSlotSequence: 0.10,
		},
		Ledger: map[domain.Mask]float64{
			domain.BitSameAuthority: 0.06,
			domain.BitProgramInit:   0.05,
			domain.BitSlotDensity:   0.04,
			domain.BitLPStruct:      0.05,
			domain.BitCleanFunding:  0.05,
		},
	}
}

// Validate checks that the probe weights sum to 1.0 and no weight is negative.
func (w Weights) Validate() error {
	var sum float64
	for bit, v := range w.Probe {
		if bit&domain.ProbeMask != bit {
			return fmt.Errorf("%w: %s is not a probe bit", ErrInvalidWeights, bit)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidWeights, bit)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: probe weights sum to %.6f", ErrInvalidWeights, sum)
	}
	for bit, v := range w.Ledger {
		if bit&domain.ProbeMask != 0 {
			return fmt.Errorf("%w: %s is not a ledger bit", ErrInvalidWeights, bit)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative boost for %s", ErrInvalidWeights, bit)
		}
	}
	return nil
}

// Score returns the weighted readiness score clamped to [0,1].
func Score(probe, ledger domain.Mask, w Weights) float64 {
	var score float64
	for bit, v := range w.Probe {
		if probe&bit != 0 {
			score += v
		}
	}
	for bit, v := range w.Ledger {
		if ledger&bit != 0 {
			score += v
		}
	}
	return math.Min(score, 1.0)
}

// Decide applies the trigger rule. Transferability is a hard gate; the core
// shortcut needs every core probe bit and ignores ledger evidence.
func Decide(probe domain.Mask, strong bool, score, threshold float64) bool {
	if !probe.Has(domain.BitTransferable) {
		return false
	}
	coreOK := probe.Has(domain.CoreMask)
	return coreOK || score >= threshold || strong
}
