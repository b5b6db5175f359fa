package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func okProbe(ctx context.Context, url string) error { return nil }

func newTestPool(t *testing.T, urls ...string) *EndpointPool {
	t.Helper()
	pool, err := NewEndpointPool(context.Background(), urls, okProbe)
	if err != nil {
		t.Fatalf("new endpoint pool: %v", err)
	}
	return pool
}

func newTestExecutor(pool *EndpointPool, cfg RetryConfig) (*Executor, *[]time.Duration) {
	exec := NewExecutor(pool, cfg)
	var slept []time.Duration
	exec.sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	exec.jitter = func(time.Duration) time.Duration { return 0 }
	return exec, &slept
}

func TestExecutorRotatesThenSucceeds(t *testing.T) {
	pool := newTestPool(t, "http://a", "http://b", "http://c")
	exec, slept := newTestExecutor(pool, RetryConfig{MaxAttempts: 3})

	var endpoints []string
	err := exec.Execute(context.Background(), func(ctx context.Context, endpoint string) error {
		endpoints = append(endpoints, endpoint)
		if len(endpoints) < 3 {
			return &TransientError{Err: errors.New("connection refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := []string{"http://a", "http://b", "http://c"}
	if len(endpoints) != len(want) {
		t.Fatalf("expected 3 attempts, got %v", endpoints)
	}
	for i, url := range want {
		if endpoints[i] != url {
			t.Fatalf("attempt %d: expected %s, got %s", i, url, endpoints[i])
		}
	}
	// Every rotation had an untried endpoint, so no backoff was consumed.
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", *slept)
	}
}

func TestExecutorBacksOffAfterFullRotation(t *testing.T) {
	pool := newTestPool(t, "http://a", "http://b")
	exec, slept := newTestExecutor(pool, RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
	})

	calls := 0
	err := exec.Execute(context.Background(), func(ctx context.Context, endpoint string) error {
		calls++
		return &TransientError{Err: errors.New("unreachable")}
	})
	if err == nil {
		t.Fatal("expected terminal error after exhaustion")
	}
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected last transient error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	// Two endpoints: attempt 1 rotates free, attempt 2 completes the cycle
	// and sleeps, attempt 3 rotates free again.
	if len(*slept) != 1 {
		t.Fatalf("expected exactly one backoff sleep, got %v", *slept)
	}
	if (*slept)[0] != 200*time.Millisecond {
		t.Fatalf("expected 200ms second-attempt delay, got %v", (*slept)[0])
	}
}

func TestExecutorDoesNotRetryLedgerErrors(t *testing.T) {
	pool := newTestPool(t, "http://a", "http://b")
	exec, _ := newTestExecutor(pool, RetryConfig{MaxAttempts: 5})

	calls := 0
	rpcErr := &RPCError{Code: -32000, Message: "pool is paused"}
	err := exec.Execute(context.Background(), func(ctx context.Context, endpoint string) error {
		calls++
		return rpcErr
	})
	if !errors.Is(err, rpcErr) {
		t.Fatalf("expected rpc error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
	if pool.Current() != "http://a" {
		t.Fatalf("expected no rotation, current is %s", pool.Current())
	}
}

func TestExecutorDoesNotRetryAmbiguousWrites(t *testing.T) {
	pool := newTestPool(t, "http://a", "http://b")
	exec, _ := newTestExecutor(pool, RetryConfig{MaxAttempts: 5})

	calls := 0
	err := exec.Execute(context.Background(), func(ctx context.Context, endpoint string) error {
		calls++
		return &AmbiguousCommitError{Err: errors.New("timeout awaiting response")}
	})
	var ambiguous *AmbiguousCommitError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected ambiguous commit error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt for ambiguous write, got %d", calls)
	}
}

func TestExecutorHonorsContextCancellation(t *testing.T) {
	pool := newTestPool(t, "http://a")
	exec := NewExecutor(pool, RetryConfig{MaxAttempts: 5, BaseDelay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- exec.Execute(ctx, func(ctx context.Context, endpoint string) error {
			calls++
			cancel()
			return &TransientError{Err: errors.New("unreachable")}
		})
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected single attempt before cancellation, got %d", calls)
	}
}

func TestRetryConfigDelayCapsAtMax(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2}.normalized()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond},
		{10, 350 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := cfg.delay(tc.attempt); got != tc.want {
			t.Fatalf("delay(%d): expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
