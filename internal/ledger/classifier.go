package ledger

import (
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"solana-slot-sniper/internal/domain"
)

// Transfer is a best-effort transfer record parsed from a log line.
type Transfer struct {
	From   string   // first address-like token (empty if none)
	To     string   // second address-like token (empty if none)
	Amount *float64 // last numeric token (nullable)
	Raw    string   // original line
}

// Classifier turns an event's kind tag and log text into evidence.
// Implementations must never panic on malformed input.
type Classifier interface {
	// Classify returns the per-event flag bits for every fresh mint.
	Classify(kind string, logs []string) domain.Mask

	// ParseTransfers extracts transfer-shaped lines.
	ParseTransfers(logs []string) []Transfer
}

// Keyword sets matched against lowercased text.
var (
	ataKeywords      = []string{"associated", "ata", "associated token"}
	createKeywords   = []string{"create", "initializemint", "createidempotent"}
	programKeywords  = []string{"pool", "init"}
	liquidityKeyword = []string{"vault", "pool", "lp", "liquidity", "lp_mint", "lp mint"}
)

// KeywordClassifier is the lexical heuristic classifier.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a new KeywordClassifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify implements Classifier.
func (KeywordClassifier) Classify(kind string, logs []string) domain.Mask {
	var m domain.Mask

	k := strings.ToLower(kind)
	if strings.Contains(k, "initialize") {
		m |= domain.BitAccountCreated
	}
	if containsAny(k, programKeywords) {
		m |= domain.BitProgramInit
	}

	if len(logs) == 0 {
		return m
	}
	text := strings.ToLower(strings.Join(logs, "\n"))
	if containsAny(text, ataKeywords) {
		m |= domain.BitATACreated
	}
	if containsAny(text, createKeywords) {
		m |= domain.BitAccountCreated
	}
	if containsAny(text, liquidityKeyword) {
		m |= domain.BitLPStruct
	}
	return m
}

// ParseTransfers implements Classifier.
// Keyword matching is case-insensitive but addresses keep their original case.
func (KeywordClassifier) ParseTransfers(logs []string) []Transfer {
	var out []Transfer
	for _, block := range logs {
		for _, line := range strings.Split(block, "\n") {
			if !strings.Contains(strings.ToLower(line), "transfer") {
				continue
			}
			out = append(out, parseTransferLine(line))
		}
	}
	return out
}

func parseTransferLine(line string) Transfer {
	t := Transfer{Raw: line}
	for _, field := range strings.Fields(line) {
		tok := strings.Trim(field, ",;:()[]{}\"'")
		if IsAddress(tok) {
			if t.From == "" {
				t.From = tok
			} else if t.To == "" {
				t.To = tok
			}
			continue
		}
		if isNumeric(tok) {
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				t.Amount = &v
			}
		}
	}
	return t
}

// IsAddress reports whether s is a base58-encoded 32-byte public key.
func IsAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot && i > 0 && i < len(s)-1:
			dot = true
		default:
			return false
		}
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

var _ Classifier = KeywordClassifier{}
