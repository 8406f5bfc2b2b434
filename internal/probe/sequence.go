package probe

import (
	"strings"

	"solana-slot-sniper/internal/solana"
)

var (
	createKeywords    = []string{"create", "initializemint", "createidempotent"}
	authorityKeywords = []string{"authority", "setauthority", "set authority"}
	poolKeywords      = []string{"pool", "createpool"}
	poolInitKeywords  = []string{
		"initialize pool", "initialize_pool", "pool initialized", "pool_creation",
		"init_pool", "createpool", "add_liquidity",
	}
)

// ammPrograms are pool programs whose presence in a transaction referencing
// the mint counts as a pool.
var ammPrograms = map[string]bool{
	solana.RaydiumAMMV4ProgramID:  true,
	solana.OrcaWhirlpoolProgramID: true,
}

// txSignals are the log and account facts of one transaction.
type txSignals struct {
	createAuthPool bool // create + authority + pool mention
	poolInit       bool
	mentionsPool   bool
	touchesMint    bool
	touchesAMM     bool
}

func classifyTx(tx *solana.Transaction, mint string) txSignals {
	text := strings.ToLower(strings.Join(tx.Logs(), "\n"))
	s := txSignals{
		poolInit:     containsAny(text, poolInitKeywords),
		mentionsPool: containsAny(text, poolKeywords),
	}
	s.createAuthPool = containsAny(text, createKeywords) && containsAny(text, authorityKeywords) && s.mentionsPool
	for _, k := range tx.AccountKeys() {
		if k == mint {
			s.touchesMint = true
		}
		if ammPrograms[k] {
			s.touchesAMM = true
		}
	}
	return s
}

// slotScan aggregates txSignals over one block.
type slotScan struct {
	slot           int64
	createAuthPool bool
	poolInit       bool
	poolExists     bool // a mint transaction touched an AMM or mentioned a pool
	mintPoolInit   bool // a mint transaction initialized a pool
}

func scanBlock(block *solana.Block, mint string) slotScan {
	sc := slotScan{slot: block.Slot}
	for i := range block.Transactions {
		s := classifyTx(&block.Transactions[i], mint)
		sc.createAuthPool = sc.createAuthPool || s.createAuthPool
		sc.poolInit = sc.poolInit || s.poolInit
		if s.touchesMint {
			sc.poolExists = sc.poolExists || s.touchesAMM || s.mentionsPool
			sc.mintPoolInit = sc.mintPoolInit || s.poolInit
		}
	}
	return sc
}

// Sequence is a detected create-then-init slot pair.
type Sequence struct {
	PrevSlot int64 `json:"prevSlot"`
	InitSlot int64 `json:"initSlot"`
}

// detectSequence returns the first slot s, in ascending order, where slot
// s-1 carries create+authority+pool-mention logs and slot s carries
// pool-init logs.
func detectSequence(scans map[int64]slotScan, from, to int64) *Sequence {
	for s := from + 1; s <= to; s++ {
		prev, okPrev := scans[s-1]
		cur, okCur := scans[s]
		if okPrev && okCur && prev.createAuthPool && cur.poolInit {
			return &Sequence{PrevSlot: s - 1, InitSlot: s}
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
