// Package probe derives the probe evidence bits of a mint from RPC facts:
// the mint account, the creator's associated token account and the blocks
// around the mint's first signature.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/slotclock"
	"solana-slot-sniper/internal/solana"
)

// Prober defaults
const (
	DefaultWindow         = 10
	DefaultSignatureLimit = 4
	DefaultBlockFetchers  = 4
)

// Options configures a Prober.
type Options struct {
	RPC            solana.RPCClient // usually a *GuardedRPC
	Window         int64            // slots scanned each side of the first signature
	SignatureLimit int
	BlockFetchers  int
	Logger         *zerolog.Logger
}

// Result is the outcome of one probe.
type Result struct {
	Mint       string      `json:"mint"`
	Mask       domain.Mask `json:"mask"`
	FirstSlot  int64       `json:"firstSlot,omitempty"`
	Sequence   *Sequence   `json:"sequence,omitempty"`
	Account    *Mint       `json:"-"`
	CreatorATA string      `json:"creatorAta,omitempty"`
	Scanned    int         `json:"scanned"`
	Skipped    int         `json:"skipped"`
	Degraded   bool        `json:"degraded,omitempty"` // breaker open, no evidence gathered
}

// LaunchState maps the probe facts onto the scheduler's risk input.
// Liquidity is not probed and stays zero unless set by the caller.
func (r Result) LaunchState() slotclock.LaunchState {
	s := slotclock.LaunchState{
		Entity:          r.Mint,
		PoolInitialized: r.Mask.Has(domain.BitPoolInit),
		Transferable:    r.Mask.Has(domain.BitTransferable),
	}
	if r.Account != nil {
		s.MintAuthority = r.Account.MintAuthority != ""
		s.FreezeAuthority = r.Account.FreezeAuthority != ""
	}
	return s
}

// Prober gathers probe evidence for mints.
type Prober struct {
	rpc      solana.RPCClient
	window   int64
	sigLimit int
	fetchers int
	logger   zerolog.Logger
}

// NewProber creates a Prober.
func NewProber(opts Options) *Prober {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.SignatureLimit <= 0 {
		opts.SignatureLimit = DefaultSignatureLimit
	}
	if opts.BlockFetchers <= 0 {
		opts.BlockFetchers = DefaultBlockFetchers
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Prober{
		rpc:      opts.RPC,
		window:   opts.Window,
		sigLimit: opts.SignatureLimit,
		fetchers: opts.BlockFetchers,
		logger:   logger.With().Str("component", "probe").Logger(),
	}
}

// Probe gathers evidence for mint. creator, when known, is the authority
// seen on the creating event; its associated token account decides
// transferability for mints that keep a freeze authority.
//
// An open breaker is not an error: the result is marked Degraded and
// carries no bits.
func (p *Prober) Probe(ctx context.Context, mint, creator string) (Result, error) {
	res, err := p.probe(ctx, mint, creator)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.Warn().Str("entity", mint).Msg("rpc breaker open, probe skipped")
		return Result{Mint: mint, Degraded: true}, nil
	}
	return res, err
}

func (p *Prober) probe(ctx context.Context, mint, creator string) (Result, error) {
	res := Result{Mint: mint}

	if err := p.probeMint(ctx, &res, creator); err != nil {
		return res, err
	}
	if err := p.probeSlots(ctx, &res); err != nil {
		return res, err
	}

	p.logger.Debug().
		Str("entity", mint).
		Int64("first_slot", res.FirstSlot).
		Int("scanned", res.Scanned).
		Str("mask", res.Mask.String()).
		Msg("probe complete")
	return res, nil
}

func (p *Prober) probeMint(ctx context.Context, res *Result, creator string) error {
	info, err := p.rpc.GetAccountInfo(ctx, res.Mint)
	if err != nil {
		return fmt.Errorf("mint account: %w", err)
	}
	if info == nil {
		return nil
	}
	m, err := DecodeMint(info)
	if err != nil {
		p.logger.Debug().Err(err).Str("entity", res.Mint).Msg("not a mint account")
		return nil
	}
	res.Account = m
	if !m.Initialized {
		return nil
	}

	res.Mask |= domain.BitMintExists
	if m.MintAuthority == "" {
		res.Mask |= domain.BitAuthorityOK
	}
	if m.FreezeAuthority == "" {
		res.Mask |= domain.BitTransferable
		return nil
	}
	if creator == "" {
		return nil
	}

	ata, err := FindAssociatedTokenAddress(creator, res.Mint)
	if err != nil {
		return nil
	}
	res.CreatorATA = ata
	acct, err := p.rpc.GetAccountInfo(ctx, ata)
	if err != nil {
		return fmt.Errorf("creator token account: %w", err)
	}
	if acct == nil {
		return nil
	}
	if ta, err := DecodeTokenAccount(acct); err == nil && ta.State == TokenAccountInitialized {
		res.Mask |= domain.BitTransferable
	}
	return nil
}

func (p *Prober) probeSlots(ctx context.Context, res *Result) error {
	sigs, err := p.rpc.GetSignaturesForAddress(ctx, res.Mint, &solana.SignaturesOpts{Limit: p.sigLimit})
	if err != nil {
		return fmt.Errorf("signatures: %w", err)
	}
	for _, s := range sigs {
		if s.Slot > 0 && (res.FirstSlot == 0 || s.Slot < res.FirstSlot) {
			res.FirstSlot = s.Slot
		}
	}
	if res.FirstSlot == 0 {
		return nil
	}

	from := res.FirstSlot - p.window
	if from < 1 {
		from = 1
	}
	to := res.FirstSlot + p.window

	var mu sync.Mutex
	scans := make(map[int64]slotScan)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fetchers)
	for slot := from; slot <= to; slot++ {
		slot := slot
		g.Go(func() error {
			block, err := p.rpc.GetBlock(gctx, slot)
			var rpcErr *solana.RPCError
			switch {
			case errors.As(err, &rpcErr):
				mu.Lock()
				res.Skipped++
				mu.Unlock()
				return nil
			case err != nil:
				return fmt.Errorf("block %d: %w", slot, err)
			case block == nil:
				return nil
			}
			sc := scanBlock(block, res.Mint)
			mu.Lock()
			scans[slot] = sc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	res.Scanned = len(scans)
	for _, sc := range scans {
		if sc.poolExists {
			res.Mask |= domain.BitPoolExists
		}
		if sc.mintPoolInit {
			res.Mask |= domain.BitPoolInit
		}
	}
	if seq := detectSequence(scans, from, to); seq != nil {
		res.Sequence = seq
		res.Mask |= domain.BitSlotSequence
	}
	return nil
}
