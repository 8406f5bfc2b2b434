// Package keylock serializes actions per key and rate-limits repeated commands.
package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-slot-sniper/internal/observability"
)

var (
	// ErrCommandTimeout is returned when an exclusive task outlives its timeout.
	// The queue is released; the task itself may still be running.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrTaskPanic wraps a panic recovered from an exclusive task.
	ErrTaskPanic = errors.New("task panicked")

	// ErrNilTask is returned when RunExclusive is called without a task.
	ErrNilTask = errors.New("nil task")
)

// Task is a unit of exclusive work.
type Task func(ctx context.Context) (any, error)

// Options configures a Controller.
type Options struct {
	// Now overrides the clock used by the attempt limiter. Default: time.Now.
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Controller runs tasks one at a time per key, in submission order.
// Different keys are fully independent.
type Controller struct {
	mu       sync.Mutex
	tails    map[string]*ticket
	attempts map[attemptKey]*attemptRecord
	now      func() time.Time
	logger   zerolog.Logger
}

// ticket is one link in a key's queue. done closes when the owner releases.
type ticket struct {
	done chan struct{}
	once sync.Once
}

type attemptKey struct {
	key     string
	command string
}

type attemptRecord struct {
	count       int
	windowStart time.Time
}

type taskResult struct {
	value any
	err   error
}

// NewController creates a new Controller.
func NewController(opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Controller{
		tails:    make(map[string]*ticket),
		attempts: make(map[attemptKey]*attemptRecord),
		now:      now,
		logger:   logger.With().Str("component", "keylock").Logger(),
	}
}

// RunExclusive runs task once every earlier task for key has settled.
// A positive timeout bounds how long the caller waits for the task itself;
// on expiry ErrCommandTimeout is returned and the next queued task may start
// while this one keeps running in the background.
func (c *Controller) RunExclusive(ctx context.Context, key string, task Task, timeout time.Duration) (any, error) {
	if task == nil {
		return nil, ErrNilTask
	}

	me := &ticket{done: make(chan struct{})}
	c.mu.Lock()
	prev := c.tails[key]
	c.tails[key] = me
	c.mu.Unlock()

	waitStart := time.Now()
	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			// Successors must still wait for prev, so hand the release off.
			go func() {
				<-prev.done
				c.release(key, me)
			}()
			return nil, ctx.Err()
		}
	}
	observability.RecordLockWait(time.Since(waitStart).Seconds())

	resCh := make(chan taskResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- taskResult{err: fmt.Errorf("%w: %v", ErrTaskPanic, r)}
			}
		}()
		v, err := task(ctx)
		resCh <- taskResult{value: v, err: err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-resCh:
		c.release(key, me)
		return res.value, res.err
	case <-timeoutCh:
		c.release(key, me)
		observability.RecordLockTimeout()
		c.logger.Warn().Str("key", key).Dur("timeout", timeout).Msg("exclusive task timed out, queue released")
		return nil, ErrCommandTimeout
	case <-ctx.Done():
		c.release(key, me)
		return nil, ctx.Err()
	}
}

// release lets the successor of t proceed and drops the key once idle.
func (c *Controller) release(key string, t *ticket) {
	t.once.Do(func() {
		close(t.done)
		c.mu.Lock()
		if c.tails[key] == t {
			delete(c.tails, key)
		}
		c.mu.Unlock()
	})
}

// Do is a typed wrapper around RunExclusive.
func Do[T any](ctx context.Context, c *Controller, key string, fn func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T
	v, err := c.RunExclusive(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, timeout)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

// CanAttempt counts an attempt of command under key and reports whether it
// is within budget. The window resets wholesale once resetAfter has elapsed
// since the first attempt in the current window.
func (c *Controller) CanAttempt(key, command string, maxAttempts int, resetAfter time.Duration) bool {
	if maxAttempts <= 0 {
		return false
	}

	now := c.now()
	k := attemptKey{key: key, command: command}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.attempts[k]
	if !ok || now.Sub(rec.windowStart) > resetAfter {
		c.attempts[k] = &attemptRecord{count: 1, windowStart: now}
		return true
	}

	if rec.count >= maxAttempts {
		observability.RecordThrottled(command)
		return false
	}
	rec.count++
	return true
}

// ClearAttempts restores the full budget for command under key.
func (c *Controller) ClearAttempts(key, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, attemptKey{key: key, command: command})
}

// QueuedKeys returns the number of keys with a task in flight or queued.
func (c *Controller) QueuedKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tails)
}
