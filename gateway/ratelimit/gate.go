package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scopes identify which throttle rejected a request.
const (
	ScopeGlobal    = "global"
	ScopeOperation = "operation"
	ScopeIdentity  = "identity"
)

// ErrRateLimited is the sentinel every limit rejection matches with errors.Is.
var ErrRateLimited = errors.New("ratelimit: limit exceeded")

// LimitError reports which scope rejected the request and the limit in force.
type LimitError struct {
	Scope  string
	Limit  int64
	Window time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimit: %s limit of %d per %s exceeded", e.Scope, e.Limit, e.Window)
}

func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// Limit is one window/limit pair.
type Limit struct {
	Max    int64
	Window time.Duration
}

func (l Limit) enabled() bool { return l.Max > 0 && l.Window > 0 }

// Config carries the three throttle tiers evaluated in order: every request
// counts against the origin, financially sensitive operations count against a
// tighter per-origin limit, and borrower identities are throttled regardless
// of origin.
type Config struct {
	Global    Limit
	Operation Limit
	Identity  Limit
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Global:    Limit{Max: 100, Window: time.Minute},
		Operation: Limit{Max: 10, Window: time.Minute},
		Identity:  Limit{Max: 5, Window: time.Minute},
	}
}

// Gate is the admission gate applied before a request reaches the estimator
// or the ledger.
type Gate struct {
	store  CounterStore
	config Config
}

// NewGate builds a gate over the given counter store.
func NewGate(store CounterStore, config Config) *Gate {
	return &Gate{store: store, config: config}
}

// Check evaluates the three throttles in order and returns a LimitError
// naming the first scope whose window is already full. The sensitive flag
// marks financially sensitive operation classes that count against the
// tighter operation tier.
func (g *Gate) Check(ctx context.Context, origin, identity string, sensitive bool) error {
	if g == nil || g.store == nil {
		return nil
	}
	if err := g.check(ctx, ScopeGlobal, origin, g.config.Global); err != nil {
		return err
	}
	if sensitive {
		if err := g.check(ctx, ScopeOperation, origin, g.config.Operation); err != nil {
			return err
		}
	}
	if identity != "" {
		if err := g.check(ctx, ScopeIdentity, identity, g.config.Identity); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gate) check(ctx context.Context, scope, key string, limit Limit) error {
	if !limit.enabled() || key == "" {
		return nil
	}
	count, err := g.store.Incr(ctx, scope+":"+key, limit.Window)
	if err != nil {
		return fmt.Errorf("ratelimit: counter store: %w", err)
	}
	if count > limit.Max {
		return &LimitError{Scope: scope, Limit: limit.Max, Window: limit.Window}
	}
	return nil
}
