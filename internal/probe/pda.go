package probe

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-slot-sniper/internal/solana"
)

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("no viable bump seed")

const pdaMarker = "ProgramDerivedAddress"

// FindProgramAddress derives the program address for seeds, searching bump
// seeds from 255 down to 1 for the first hash that is off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := decodeKey(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}

	var buf []byte
	for _, s := range seeds {
		buf = append(buf, s...)
	}
	seedLen := len(buf)

	for bump := 255; bump > 0; bump-- {
		buf = append(buf[:seedLen], byte(bump))
		buf = append(buf, program...)
		buf = append(buf, pdaMarker...)
		hash := sha256.Sum256(buf)
		if !onCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// FindAssociatedTokenAddress returns the associated token account of owner
// for mint under the classic token program.
func FindAssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := decodeKey(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintKey, err := decodeKey(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, _ := decodeKey(solana.TokenProgramID)

	addr, _, err := FindProgramAddress([][]byte{ownerKey, tokenProgram, mintKey}, solana.AssociatedTokenProgramID)
	return addr, err
}

func decodeKey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key %q decodes to %d bytes", s, len(b))
	}
	return b, nil
}

func onCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
