// Package solana is a minimal Solana JSON-RPC and logsSubscribe client.
package solana

import "context"

// Well-known program IDs.
const (
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	MetaplexProgramID        = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	RaydiumAMMV4ProgramID    = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	OrcaWhirlpoolProgramID   = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	JupiterV6ProgramID       = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

// RPCClient is the subset of the Solana HTTP API used by the probe layer.
type RPCClient interface {
	// GetTransaction returns nil, nil when the transaction is unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	GetBlock(ctx context.Context, slot int64) (*Block, error)

	// GetSignaturesForAddress returns signatures newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo returns nil, nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	GetSlot(ctx context.Context) (int64, error)
}

// Transaction is a confirmed transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // unix seconds
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Logs returns the log messages, or nil without meta.
func (t *Transaction) Logs() []string {
	if t == nil || t.Meta == nil {
		return nil
	}
	return t.Meta.LogMessages
}

// AccountKeys returns the message account keys, or nil without a message.
func (t *Transaction) AccountKeys() []string {
	if t == nil || t.Message == nil {
		return nil
	}
	return t.Message.AccountKeys
}

type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

type TransactionMessage struct {
	AccountKeys []string
}

// Block is a confirmed block with full transaction details.
type Block struct {
	Slot         int64
	BlockTime    *int64
	Transactions []Transaction
}

// SignatureInfo is one getSignaturesForAddress entry.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts paginates getSignaturesForAddress.
type SignaturesOpts struct {
	Before string
	Until  string
	Limit  int
}

// AccountInfo is a getAccountInfo value. Data is base64.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
