// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"solana-slot-sniper/internal/solana"
)

// ErrSkipped is returned by GetBlock for slots with no block, shaped like
// the node's own answer.
var ErrSkipped error = &solana.RPCError{Code: -32007, Message: "Slot was skipped, or missing due to ledger jump to recent snapshot"}

// RPCClient serves canned chain data. It is safe for concurrent use.
type RPCClient struct {
	mu           sync.RWMutex
	Transactions map[string]*solana.Transaction
	Blocks       map[int64]*solana.Block
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo
	Slot         int64

	// Err, when set, fails every call.
	Err error

	calls map[string]int
}

func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Blocks:       make(map[int64]*solana.Block),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Accounts:     make(map[string]*solana.AccountInfo),
		calls:        make(map[string]int),
	}
}

func (c *RPCClient) begin(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.Err
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[method]
}

func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if err := c.begin("getTransaction"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Transactions[signature], nil
}

func (c *RPCClient) GetBlock(_ context.Context, slot int64) (*solana.Block, error) {
	if err := c.begin("getBlock"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	block, ok := c.Blocks[slot]
	if !ok {
		return nil, ErrSkipped
	}
	return block, nil
}

func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := c.begin("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}
	return sigs, nil
}

func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.begin("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Accounts[pubkey], nil
}

func (c *RPCClient) GetSlot(context.Context) (int64, error) {
	if err := c.begin("getSlot"); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// AddBlock stores block and indexes its transactions by signature.
func (c *RPCClient) AddBlock(block *solana.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Blocks[block.Slot] = block
	for i := range block.Transactions {
		tx := block.Transactions[i]
		tx.Slot = block.Slot
		if tx.Signature != "" {
			c.Transactions[tx.Signature] = &tx
		}
	}
}

func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

var _ solana.RPCClient = (*RPCClient)(nil)
