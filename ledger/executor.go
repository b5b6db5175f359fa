package ledger

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds the executor's retry loop.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultRetryConfig mirrors the documented defaults: three attempts with a
// doubling backoff and jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	return c
}

// delay computes min(base * multiplier^(attempt-1), max) for 1-based attempts.
func (c RetryConfig) delay(attempt int) time.Duration {
	backoff := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		backoff *= c.Multiplier
		if backoff >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if backoff > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(backoff)
}

// Operation is one logical ledger call executed against the endpoint passed
// in. The executor supplies the endpoint and may invoke the operation several
// times, once per attempt.
type Operation func(ctx context.Context, endpoint string) error

// Executor runs ledger operations with bounded retry, exponential backoff,
// and endpoint rotation on network-class failures. It is reentrant: each call
// keeps its own attempt state and shares only the endpoint pool.
type Executor struct {
	pool     *EndpointPool
	config   RetryConfig
	sleepFn  func(ctx context.Context, d time.Duration) error
	jitter   func(max time.Duration) time.Duration
	onRotate func()
}

// NewExecutor builds an executor over the shared endpoint pool.
func NewExecutor(pool *EndpointPool, config RetryConfig) *Executor {
	return &Executor{
		pool:    pool,
		config:  config.normalized(),
		sleepFn: sleepContext,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// OnRotate registers a callback invoked on every endpoint rotation. Used to
// feed rotation counters.
func (e *Executor) OnRotate(fn func()) {
	e.onRotate = fn
}

// Execute runs the operation until it succeeds, a non-transient error
// surfaces, or the configured attempts are exhausted. A transient failure
// rotates to the next endpoint; the first rotation after each backoff sleep
// retries immediately so a healthy standby is reached without delay.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	var lastErr error
	rotations := 0
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		endpoint := e.pool.Current()
		err := op(ctx, endpoint)
		if err == nil {
			e.pool.RecordSuccess(endpoint)
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		e.pool.RecordFailure(endpoint)
		if attempt == e.config.MaxAttempts {
			break
		}
		e.pool.Advance()
		rotations++
		if e.onRotate != nil {
			e.onRotate()
		}
		if rotations < e.pool.Len() {
			// Untried endpoints remain in this cycle; retry immediately.
			continue
		}
		rotations = 0
		delay := e.config.delay(attempt)
		if e.config.Jitter {
			delay += e.jitter(e.config.BaseDelay)
		}
		if err := e.sleepFn(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
