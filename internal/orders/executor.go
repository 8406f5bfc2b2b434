package orders

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/domain"
)

// Executor carries out a matched order at price.
type Executor interface {
	Execute(ctx context.Context, o *domain.PendingOrder, price float64) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, o *domain.PendingOrder, price float64) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, o *domain.PendingOrder, price float64) error {
	return f(ctx, o, price)
}

// LogExecutor logs each execution and always succeeds. Used for simulation.
type LogExecutor struct {
	Logger *zerolog.Logger
}

// Execute logs the order.
func (e LogExecutor) Execute(_ context.Context, o *domain.PendingOrder, price float64) error {
	if e.Logger == nil {
		return nil
	}
	e.Logger.Info().
		Str("user", o.UserID).
		Str("order_id", o.OrderID).
		Str("entity", o.Entity).
		Str("kind", string(o.Kind)).
		Float64("price", price).
		Float64("amount", o.Amount).
		Msg("simulated execution")
	return nil
}

// safeExecute converts an executor panic into an error.
func safeExecute(ctx context.Context, exec Executor, o *domain.PendingOrder, price float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return exec.Execute(ctx, o, price)
}
