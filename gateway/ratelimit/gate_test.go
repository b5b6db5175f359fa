package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestGate(config Config) (*Gate, *MemoryCounterStore, *time.Time) {
	store := NewMemoryCounterStore()
	now := time.Unix(1_700_000_000, 0)
	store.clockNow = func() time.Time { return now }
	return NewGate(store, config), store, &now
}

func TestGateRejectsEleventhSensitiveRequest(t *testing.T) {
	gate, _, _ := newTestGate(DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := gate.Check(ctx, "10.0.0.1", "", true); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i+1, err)
		}
	}
	err := gate.Check(ctx, "10.0.0.1", "", true)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Scope != ScopeOperation {
		t.Fatalf("expected operation scope, got %v", err)
	}
}

func TestGateGlobalScopeCountsAllRequests(t *testing.T) {
	config := DefaultConfig()
	config.Global = Limit{Max: 3, Window: time.Minute}
	gate, _, _ := newTestGate(config)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := gate.Check(ctx, "origin-a", "", false); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	err := gate.Check(ctx, "origin-a", "", false)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Scope != ScopeGlobal {
		t.Fatalf("expected global scope rejection, got %v", err)
	}
	// A different origin opens its own window.
	if err := gate.Check(ctx, "origin-b", "", false); err != nil {
		t.Fatalf("fresh origin limited: %v", err)
	}
}

func TestGateIdentityScopeIgnoresOrigin(t *testing.T) {
	config := Config{
		Global:   Limit{Max: 100, Window: time.Minute},
		Identity: Limit{Max: 2, Window: time.Minute},
	}
	gate, _, _ := newTestGate(config)
	ctx := context.Background()

	if err := gate.Check(ctx, "origin-a", "0xborrower", false); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := gate.Check(ctx, "origin-b", "0xborrower", false); err != nil {
		t.Fatalf("second: %v", err)
	}
	err := gate.Check(ctx, "origin-c", "0xborrower", false)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Scope != ScopeIdentity {
		t.Fatalf("expected identity scope rejection, got %v", err)
	}
}

func TestGateWindowExpiryResetsCounter(t *testing.T) {
	config := Config{Global: Limit{Max: 1, Window: time.Minute}}
	gate, _, now := newTestGate(config)
	ctx := context.Background()

	if err := gate.Check(ctx, "origin-a", "", false); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := gate.Check(ctx, "origin-a", "", false); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit before expiry, got %v", err)
	}
	*now = now.Add(61 * time.Second)
	if err := gate.Check(ctx, "origin-a", "", false); err != nil {
		t.Fatalf("expected fresh window after expiry, got %v", err)
	}
}

func TestGateDisabledLimitsPassThrough(t *testing.T) {
	gate := NewGate(NewMemoryCounterStore(), Config{})
	for i := 0; i < 50; i++ {
		if err := gate.Check(context.Background(), "origin", "identity", true); err != nil {
			t.Fatalf("disabled gate rejected request: %v", err)
		}
	}
}

func TestMemoryCounterStoreWindowSemantics(t *testing.T) {
	store := NewMemoryCounterStore()
	now := time.Unix(1_700_000_000, 0)
	store.clockNow = func() time.Time { return now }
	ctx := context.Background()

	// The first increment fixes the expiry; later increments do not extend it.
	for i := int64(1); i <= 3; i++ {
		count, err := store.Incr(ctx, "k", time.Minute)
		if err != nil || count != i {
			t.Fatalf("incr %d: count=%d err=%v", i, count, err)
		}
		now = now.Add(25 * time.Second)
	}
	// 75s after the first hit the window has rolled over.
	count, err := store.Incr(ctx, "k", time.Minute)
	if err != nil || count != 1 {
		t.Fatalf("expected fresh window count 1, got %d err=%v", count, err)
	}

	value, err := store.Get(ctx, "k")
	if err != nil || value != 1 {
		t.Fatalf("get: expected 1, got %d err=%v", value, err)
	}
	if value, _ := store.Get(ctx, "absent"); value != 0 {
		t.Fatalf("absent key: expected 0, got %d", value)
	}
}
