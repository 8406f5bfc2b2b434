package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
	"solana-slot-sniper/internal/idhash"
	"solana-slot-sniper/internal/keylock"
	"solana-slot-sniper/internal/storage"
)

// Ladder defaults
const (
	MaxLadderTokens       = 10
	DefaultCommandTimeout = 30 * time.Second
	DefaultFeeReserve     = 0.002
	fullySoldPercent      = 100.0
)

var (
	ErrTooManyTokens     = errors.New("too many ladder tokens")
	ErrDuplicateToken    = errors.New("token already in ladder")
	ErrInsufficientFunds = errors.New("insufficient balance for amount and fees")
)

// TokenStatus is the ladder state of one token.
type TokenStatus string

const (
	TokenPending TokenStatus = "pending"
	TokenActive  TokenStatus = "active"
	TokenSold    TokenStatus = "sold"
	TokenError   TokenStatus = "error"
)

// LadderToken is one token worked through staged take-profits.
// Percent fields are 0..100.
type LadderToken struct {
	Address        string      `json:"address" yaml:"address"`
	BuyAmount      float64     `json:"buyAmount" yaml:"buy_amount"`
	ProfitPercents []float64   `json:"profitPercents" yaml:"profit_percents"`
	SoldPercents   []float64   `json:"soldPercents" yaml:"sold_percents"`
	LastEntryPrice float64     `json:"lastEntryPrice,omitempty" yaml:"-"`
	LastSellPrice  float64     `json:"lastSellPrice,omitempty" yaml:"-"`
	CurrentStage   int         `json:"currentStage" yaml:"-"`
	Finished       bool        `json:"finished" yaml:"-"`
	Status         TokenStatus `json:"status" yaml:"-"`
	LastTxID       string      `json:"lastTxId,omitempty" yaml:"-"`
}

func (t *LadderToken) valid() bool {
	return t.Address != "" && t.BuyAmount > 0 &&
		len(t.ProfitPercents) > 0 && len(t.SoldPercents) >= len(t.ProfitPercents)
}

func (t *LadderToken) totalSold() float64 {
	var sum float64
	for _, p := range t.SoldPercents {
		sum += p
	}
	return sum
}

// resetForEntry clears the cycle so the next pass buys again.
func (t *LadderToken) resetForEntry() {
	t.Finished = false
	t.LastEntryPrice = 0
	t.LastSellPrice = 0
	t.CurrentStage = 0
	t.LastTxID = ""
	t.Status = TokenPending
}

// LadderSettings is one user's ladder.
type LadderSettings struct {
	Tokens        []*LadderToken `json:"tokens" yaml:"tokens"`
	RepeatOnEntry bool           `json:"repeatOnEntry" yaml:"repeat_on_entry"`
}

// Add appends a token. At most MaxLadderTokens are kept, without duplicates.
func (s *LadderSettings) Add(t *LadderToken) error {
	if len(s.Tokens) >= MaxLadderTokens {
		return ErrTooManyTokens
	}
	for _, cur := range s.Tokens {
		if cur.Address == t.Address {
			return ErrDuplicateToken
		}
	}
	s.Tokens = append(s.Tokens, t)
	return nil
}

// Remove drops the token with address, if present.
func (s *LadderSettings) Remove(address string) {
	kept := s.Tokens[:0]
	for _, t := range s.Tokens {
		if t.Address != address {
			kept = append(kept, t)
		}
	}
	s.Tokens = kept
}

// Trader performs the ladder's buys and sells and returns a transaction ID.
type Trader interface {
	Buy(ctx context.Context, entity string, amount float64) (string, error)
	Sell(ctx context.Context, entity string, amount float64) (string, error)
}

// PriceFunc returns the current price of entity.
type PriceFunc func(ctx context.Context, entity string) (float64, error)

// BalanceFunc returns the spendable balance of the user.
type BalanceFunc func(ctx context.Context) (float64, error)

// LadderOptions configures a Ladder.
type LadderOptions struct {
	Locks          *keylock.Controller      // default: a private controller
	Trades         storage.TradeRecordStore // optional
	Balance        BalanceFunc              // optional; nil skips the balance check
	FeeReserve     float64                  // default 0.002
	CommandTimeout time.Duration            // default 30s
	Now            func() time.Time
	Logger         *zerolog.Logger
}

// Ladder walks each token through a buy and its profit stages.
type Ladder struct {
	locks      *keylock.Controller
	trades     storage.TradeRecordStore
	balance    BalanceFunc
	feeReserve float64
	timeout    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewLadder creates a Ladder.
func NewLadder(opts LadderOptions) *Ladder {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	locks := opts.Locks
	if locks == nil {
		locks = keylock.NewController(keylock.Options{Logger: &logger})
	}
	fee := opts.FeeReserve
	if fee <= 0 {
		fee = DefaultFeeReserve
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ladder{
		locks:      locks,
		trades:     opts.Trades,
		balance:    opts.Balance,
		feeReserve: fee,
		timeout:    timeout,
		now:        now,
		logger:     logger.With().Str("component", "ladder").Logger(),
	}
}

// Run makes one pass over settings for userID. A token without an entry is
// bought at the current price; an entered token sells one stage when the
// price reaches entry*(1+p/100) and exceeds the last sell. After the last
// stage the token is finished, and with RepeatOnEntry it resets once the
// price is back at or below the entry. Per-token failures mark the token
// errored and do not stop the pass.
func (l *Ladder) Run(ctx context.Context, userID string, settings *LadderSettings, price PriceFunc, trader Trader) error {
	if settings == nil {
		return nil
	}
	for _, tok := range settings.Tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !tok.valid() {
			tok.Status = TokenError
			continue
		}

		current, err := price(ctx, tok.Address)
		if err != nil || current <= 0 {
			l.logger.Debug().Err(err).Str("entity", tok.Address).Msg("price unavailable")
			tok.Status = TokenError
			continue
		}

		if tok.Finished {
			tok.Status = TokenSold
			if settings.RepeatOnEntry && tok.totalSold() >= fullySoldPercent && current <= tok.LastEntryPrice {
				tok.resetForEntry()
				l.logger.Info().Str("user", userID).Str("entity", tok.Address).Msg("ladder reset for re-entry")
			}
			continue
		}

		if tok.LastEntryPrice == 0 {
			l.enter(ctx, userID, tok, current, trader)
			continue
		}

		l.sellStage(ctx, userID, tok, current, trader)
	}
	return nil
}

func (l *Ladder) enter(ctx context.Context, userID string, tok *LadderToken, price float64, trader Trader) {
	txID, err := l.exclusive(ctx, userID, tok.BuyAmount, func(ctx context.Context) (string, error) {
		return trader.Buy(ctx, tok.Address, tok.BuyAmount)
	})
	if err != nil {
		tok.Status = TokenError
		l.record(ctx, userID, tok, domain.TradeActionBuy, tok.BuyAmount, price, domain.TradeStatusFail, err.Error())
		return
	}
	tok.LastEntryPrice = price
	tok.CurrentStage = 0
	tok.Status = TokenActive
	tok.LastTxID = txID
	l.record(ctx, userID, tok, domain.TradeActionBuy, tok.BuyAmount, price, domain.TradeStatusSuccess, txID)
}

func (l *Ladder) sellStage(ctx context.Context, userID string, tok *LadderToken, price float64, trader Trader) {
	for i := tok.CurrentStage; i < len(tok.ProfitPercents); i++ {
		target := tok.LastEntryPrice * (1 + tok.ProfitPercents[i]/100)
		if price < target || (tok.LastSellPrice > 0 && price <= tok.LastSellPrice) {
			continue
		}

		amount := tok.BuyAmount * tok.SoldPercents[i] / 100
		txID, err := l.exclusive(ctx, userID, amount, func(ctx context.Context) (string, error) {
			return trader.Sell(ctx, tok.Address, amount)
		})
		if err != nil {
			tok.Status = TokenError
			l.record(ctx, userID, tok, domain.TradeActionSell, amount, price, domain.TradeStatusFail, err.Error())
			continue
		}

		tok.LastSellPrice = price
		tok.CurrentStage = i + 1
		tok.LastTxID = txID
		l.record(ctx, userID, tok, domain.TradeActionSell, amount, price, domain.TradeStatusSuccess, txID)
		if tok.CurrentStage >= len(tok.ProfitPercents) {
			tok.Finished = true
			tok.Status = TokenSold
		}
	}
}

// exclusive checks the balance and runs fn under the user's lock.
func (l *Ladder) exclusive(ctx context.Context, userID string, amount float64, fn func(ctx context.Context) (string, error)) (string, error) {
	if l.balance != nil {
		bal, err := l.balance(ctx)
		if err != nil {
			return "", fmt.Errorf("balance: %w", err)
		}
		if bal < amount+l.feeReserve {
			return "", ErrInsufficientFunds
		}
	}
	return keylock.Do(ctx, l.locks, userID, fn, l.timeout)
}

func (l *Ladder) record(ctx context.Context, userID string, tok *LadderToken, action string, amount, price float64, status, reason string) {
	logEvent := l.logger.Info()
	if status == domain.TradeStatusFail {
		logEvent = l.logger.Warn()
	}
	logEvent.
		Str("user", userID).
		Str("entity", tok.Address).
		Str("action", action).
		Int("stage", tok.CurrentStage).
		Float64("price", price).
		Str("status", status).
		Msg(reason)

	if l.trades == nil {
		return
	}
	at := l.now().UnixMilli()
	rec := &domain.TradeRecord{
		TradeID:   idhash.ComputeTradeID(userID, fmt.Sprintf("ladder:%d", tok.CurrentStage), tok.Address, action+":"+status, at),
		UserID:    userID,
		Action:    action,
		Entity:    tok.Address,
		Amount:    amount,
		Price:     price,
		Status:    status,
		Reason:    reason,
		CreatedAt: at,
	}
	if err := l.trades.Insert(ctx, rec); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		l.logger.Warn().Err(err).Str("entity", tok.Address).Msg("trade record not saved")
	}
}
