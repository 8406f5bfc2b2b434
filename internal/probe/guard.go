package probe

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"solana-slot-sniper/internal/observability"
	"solana-slot-sniper/internal/solana"
)

// Guard defaults
const (
	DefaultRPS              = 10
	DefaultBurst            = 20
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
)

// GuardOptions configures GuardedRPC. Zero values use defaults.
type GuardOptions struct {
	Name             string
	RPS              float64
	Burst            int
	FailureThreshold uint32        // consecutive failures that open the breaker
	OpenTimeout      time.Duration // open -> half-open
	Logger           *zerolog.Logger
}

// GuardedRPC rate-limits calls to an RPCClient and trips a circuit breaker
// on repeated failures. While open, calls fail fast with
// gobreaker.ErrOpenState. Not-found results are successes.
type GuardedRPC struct {
	inner   solana.RPCClient
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedRPC wraps inner.
func NewGuardedRPC(inner solana.RPCClient, opts GuardOptions) *GuardedRPC {
	if opts.Name == "" {
		opts.Name = "rpc"
	}
	if opts.RPS <= 0 {
		opts.RPS = DefaultRPS
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "rpc_guard").Logger()

	threshold := opts.FailureThreshold
	settings := gobreaker.Settings{
		Name:    opts.Name,
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A JSON-RPC error (skipped slot, pruned block) or a cancelled
			// caller still means the endpoint answered.
			var rpcErr *solana.RPCError
			return err == nil || errors.Is(err, context.Canceled) || errors.As(err, &rpcErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state change")
			observability.RecordBreakerState(name, int(to))
		},
	}
	observability.RecordBreakerState(opts.Name, int(gobreaker.StateClosed))

	return &GuardedRPC{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the breaker state.
func (g *GuardedRPC) State() gobreaker.State {
	return g.breaker.State()
}

func guard[T any](ctx context.Context, g *GuardedRPC, fn func() (T, error)) (T, error) {
	var zero T
	if err := g.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

func (g *GuardedRPC) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	return guard(ctx, g, func() (*solana.Transaction, error) { return g.inner.GetTransaction(ctx, signature) })
}

func (g *GuardedRPC) GetBlock(ctx context.Context, slot int64) (*solana.Block, error) {
	return guard(ctx, g, func() (*solana.Block, error) { return g.inner.GetBlock(ctx, slot) })
}

func (g *GuardedRPC) GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	return guard(ctx, g, func() ([]solana.SignatureInfo, error) {
		return g.inner.GetSignaturesForAddress(ctx, address, opts)
	})
}

func (g *GuardedRPC) GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error) {
	return guard(ctx, g, func() (*solana.AccountInfo, error) { return g.inner.GetAccountInfo(ctx, pubkey) })
}

func (g *GuardedRPC) GetSlot(ctx context.Context) (int64, error) {
	return guard(ctx, g, func() (int64, error) { return g.inner.GetSlot(ctx) })
}

var _ solana.RPCClient = (*GuardedRPC)(nil)
