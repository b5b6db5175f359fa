package estimator

import (
	"context"
	"errors"
	"testing"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
)

type stubDryRunner struct {
	result *ledger.DryRunResult
	err    error
	calls  int
}

func (s *stubDryRunner) DryRun(ctx context.Context, endpoint, txBytes string) (*ledger.DryRunResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestEstimator(t *testing.T, stub *stubDryRunner, ceiling uint64) *Estimator {
	t.Helper()
	pool, err := ledger.NewEndpointPool(context.Background(), []string{"http://node"}, func(ctx context.Context, url string) error { return nil })
	if err != nil {
		t.Fatalf("endpoint pool: %v", err)
	}
	executor := ledger.NewExecutor(pool, ledger.RetryConfig{MaxAttempts: 1})
	return New(stub, executor, 0, ceiling)
}

func TestEstimateAppliesMarginAndCeiling(t *testing.T) {
	stub := &stubDryRunner{result: &ledger.DryRunResult{
		Status:  ledger.StatusSuccess,
		GasUsed: ledger.GasBreakdown{Computation: 700, Storage: 400, StorageRebate: 100},
	}}
	est := newTestEstimator(t, stub, 1250)

	result, err := est.Estimate(context.Background(), "dGVzdA==")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if result.RawCost != 1000 {
		t.Fatalf("expected raw 1000, got %d", result.RawCost)
	}
	if result.MarginedCost != 1200 {
		t.Fatalf("expected margined 1200, got %d", result.MarginedCost)
	}
	if !result.Viable || result.Reason != "" {
		t.Fatalf("expected viable result, got %+v", result)
	}
}

func TestEstimateFlagsCeilingBreach(t *testing.T) {
	stub := &stubDryRunner{result: &ledger.DryRunResult{
		Status:  ledger.StatusSuccess,
		GasUsed: ledger.GasBreakdown{Computation: 1000},
	}}
	est := newTestEstimator(t, stub, 1199)

	result, err := est.Estimate(context.Background(), "dGVzdA==")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if result.Viable {
		t.Fatal("expected non-viable result above ceiling")
	}
	if result.Reason == "" {
		t.Fatal("expected a descriptive reason")
	}
}

func TestEstimateSimulatedFailure(t *testing.T) {
	stub := &stubDryRunner{result: &ledger.DryRunResult{
		Status: ledger.StatusFailure,
		Error:  "insufficient pool balance",
	}}
	est := newTestEstimator(t, stub, 1_000_000)

	result, err := est.Estimate(context.Background(), "dGVzdA==")
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if result.Viable {
		t.Fatal("expected non-viable result for failing simulation")
	}
	if result.RawCost != 0 || result.MarginedCost != 0 {
		t.Fatalf("expected zero cost for failing simulation, got %+v", result)
	}
	if result.Reason != "would fail on execution: insufficient pool balance" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestEstimatePropagatesTransportExhaustion(t *testing.T) {
	stub := &stubDryRunner{err: &ledger.TransientError{Err: errors.New("unreachable")}}
	est := newTestEstimator(t, stub, 1_000_000)

	if _, err := est.Estimate(context.Background(), "dGVzdA=="); err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if stub.calls != 1 {
		t.Fatalf("expected 1 attempt with MaxAttempts=1, got %d", stub.calls)
	}
}

func TestMarginCostRoundsUp(t *testing.T) {
	cases := []struct {
		raw  uint64
		want uint64
	}{
		{0, 0},
		{1, 2}, // 1.2 rounds up
		{5, 6},
		{999, 1199},
		{1000, 1200},
	}
	for _, tc := range cases {
		if got := MarginCost(tc.raw, DefaultMarginPercent); got != tc.want {
			t.Fatalf("MarginCost(%d): expected %d, got %d", tc.raw, tc.want, got)
		}
	}
}
