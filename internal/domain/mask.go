package domain

import (
	"math/bits"
	"strings"
)

// Mask is a per-entity evidence bitmask.
// Probe bits occupy 0..5, ledger bits start at 6.
type Mask uint32

// Probe bits: deterministic RPC-confirmed facts.
const (
	BitMintExists Mask = 1 << iota
	BitAuthorityOK
	BitPoolExists
	BitPoolInit
	BitTransferable
	BitSlotSequence
)

// Ledger bits: heuristic evidence aggregated over the slot window.
const (
	BitAccountCreated Mask = 1 << (iota + 6)
	BitATACreated
	BitSameAuthority
	BitProgramInit
	BitSlotDensity
	BitLPStruct
	BitCleanFunding
	BitSlotAligned
	BitCreatorExposed
)

// CoreMask is the set of probe bits that short-circuits the score threshold.
const CoreMask = BitMintExists | BitAuthorityOK | BitPoolExists | BitPoolInit

// ProbeMask covers every probe bit.
const ProbeMask = BitMintExists | BitAuthorityOK | BitPoolExists | BitPoolInit | BitTransferable | BitSlotSequence

var bitNames = []struct {
	bit  Mask
	name string
}{
	{BitMintExists, "MintExists"},
	{BitAuthorityOK, "AuthorityOK"},
	{BitPoolExists, "PoolExists"},
	{BitPoolInit, "PoolInit"},
	{BitTransferable, "Transferable"},
	{BitSlotSequence, "SlotSequence"},
	{BitAccountCreated, "AccountCreated"},
	{BitATACreated, "ATACreated"},
	{BitSameAuthority, "SameAuthority"},
	{BitProgramInit, "ProgramInit"},
	{BitSlotDensity, "SlotDensity"},
	{BitLPStruct, "LPStruct"},
	{BitCleanFunding, "CleanFunding"},
	{BitSlotAligned, "SlotAligned"},
	{BitCreatorExposed, "CreatorExposed"},
}

// Has reports whether all bits of b are set.
func (m Mask) Has(b Mask) bool {
	return m&b == b
}

// Count returns the population count.
func (m Mask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// Names returns the stable names of the set bits in ascending bit order.
func (m Mask) Names() []string {
	var names []string
	for _, bn := range bitNames {
		if m&bn.bit != 0 {
			names = append(names, bn.name)
		}
	}
	return names
}

// String returns the set bit names joined by '|'.
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	return strings.Join(m.Names(), "|")
}
