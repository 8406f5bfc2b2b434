package probe

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-slot-sniper/internal/solana"
)

// SPL token account layouts
const (
	mintSize         = 82
	tokenAccountSize = 165
)

var ErrNotTokenAccount = errors.New("account not owned by a token program")

// Mint is the decoded SPL mint account. Empty authorities are revoked.
type Mint struct {
	MintAuthority   string
	Supply          uint64
	Decimals        uint8
	Initialized     bool
	FreezeAuthority string
}

// ParseMint decodes raw mint account data. Token-2022 mints carry
// extensions after the base layout and parse the same way.
//
// Layout: mintAuthority COption<Pubkey> (4+32), supply u64, decimals u8,
// isInitialized bool, freezeAuthority COption<Pubkey> (4+32).
func ParseMint(data []byte) (*Mint, error) {
	if len(data) < mintSize {
		return nil, fmt.Errorf("mint data too short: %d", len(data))
	}
	return &Mint{
		MintAuthority:   coption(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		Initialized:     data[45] == 1,
		FreezeAuthority: coption(data[46:82]),
	}, nil
}

// DecodeMint validates the owner of info and parses its data.
func DecodeMint(info *solana.AccountInfo) (*Mint, error) {
	data, err := tokenData(info)
	if err != nil {
		return nil, err
	}
	return ParseMint(data)
}

// TokenAccountState is the SPL token account state byte.
type TokenAccountState uint8

const (
	TokenAccountUninitialized TokenAccountState = iota
	TokenAccountInitialized
	TokenAccountFrozen
)

// TokenAccount is the decoded head of an SPL token account.
type TokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
	State  TokenAccountState
}

// ParseTokenAccount decodes raw token account data.
//
// Layout: mint (32), owner (32), amount u64, delegate COption (4+32), state u8.
func ParseTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < tokenAccountSize {
		return nil, fmt.Errorf("token account data too short: %d", len(data))
	}
	return &TokenAccount{
		Mint:   base58.Encode(data[0:32]),
		Owner:  base58.Encode(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
		State:  TokenAccountState(data[108]),
	}, nil
}

func DecodeTokenAccount(info *solana.AccountInfo) (*TokenAccount, error) {
	data, err := tokenData(info)
	if err != nil {
		return nil, err
	}
	return ParseTokenAccount(data)
}

func tokenData(info *solana.AccountInfo) ([]byte, error) {
	if info == nil {
		return nil, errors.New("nil account")
	}
	if info.Owner != solana.TokenProgramID && info.Owner != solana.Token2022ProgramID {
		return nil, fmt.Errorf("owner %s: %w", info.Owner, ErrNotTokenAccount)
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}

// coption decodes a 36-byte COption<Pubkey>; None is "".
func coption(b []byte) string {
	if binary.LittleEndian.Uint32(b[0:4]) == 0 {
		return ""
	}
	return base58.Encode(b[4:36])
}
