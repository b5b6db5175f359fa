package flashpool

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

type mockState struct {
	pools map[string]*Pool
}

func newMockState() *mockState {
	return &mockState{pools: make(map[string]*Pool)}
}

func (m *mockState) GetPool(id string) (*Pool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, nil
	}
	return pool, nil
}

func (m *mockState) PutPool(id string, pool *Pool) error {
	m.pools[id] = pool
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *mockState) {
	t.Helper()
	engine := NewEngine()
	state := newMockState()
	engine.SetState(state)
	return engine, state
}

func createTestPool(t *testing.T, engine *Engine) *Pool {
	t.Helper()
	pool, err := engine.CreatePool("pool-1", "owner-addr", big.NewInt(1_000_000_000), 50, big.NewInt(500_000_000))
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return pool
}

func TestCreatePoolRejectsExcessiveFeeRate(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.CreatePool("pool-1", "owner-addr", big.NewInt(1000), 501, nil); !errors.Is(err, ErrFeeRateTooHigh) {
		t.Fatalf("expected ErrFeeRateTooHigh, got %v", err)
	}
}

func TestCreatePoolRejectsDuplicateID(t *testing.T) {
	engine, _ := newTestEngine(t)
	createTestPool(t, engine)
	if _, err := engine.CreatePool("pool-1", "owner-addr", big.NewInt(1000), 50, nil); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected ErrPoolExists, got %v", err)
	}
}

func TestRequestLoanDebitsBalanceAndMintsCapability(t *testing.T) {
	engine, state := newTestEngine(t)
	createTestPool(t, engine)

	funds, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if funds.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected 100000000 funds, got %s", funds)
	}
	if capability.PoolID != "pool-1" || capability.LoanID != 0 {
		t.Fatalf("unexpected capability binding: %+v", capability)
	}
	if capability.Token == "" {
		t.Fatal("capability token must not be empty")
	}

	pool := state.pools["pool-1"]
	if pool.Balance.Cmp(big.NewInt(900_000_000)) != 0 {
		t.Fatalf("expected balance 900000000, got %s", pool.Balance)
	}
	receipt, ok := pool.Outstanding[0]
	if !ok {
		t.Fatal("expected receipt for loan 0")
	}
	if receipt.Fee.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("expected fee 500000 at 50bp, got %s", receipt.Fee)
	}
	if pool.LoanCounter != 1 || pool.TotalLoansIssued != 1 {
		t.Fatalf("expected counters to advance, got counter=%d issued=%d", pool.LoanCounter, pool.TotalLoansIssued)
	}
}

func TestRequestLoanGuards(t *testing.T) {
	engine, state := newTestEngine(t)
	createTestPool(t, engine)

	if _, _, err := engine.RequestLoan("pool-1", "b", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := engine.RequestLoan("pool-1", "b", big.NewInt(500_000_001)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("above max loan: expected ErrInvalidAmount, got %v", err)
	}

	state.pools["pool-1"].MaxLoanAmount = big.NewInt(2_000_000_000)
	if _, _, err := engine.RequestLoan("pool-1", "b", big.NewInt(1_000_000_001)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("above balance: expected ErrInsufficientBalance, got %v", err)
	}

	if err := engine.Pause("pool-1", "owner-addr"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, _, err := engine.RequestLoan("pool-1", "b", big.NewInt(1)); !errors.Is(err, ErrPoolPaused) {
		t.Fatalf("paused pool: expected ErrPoolPaused, got %v", err)
	}

	if _, _, err := engine.RequestLoan("missing", "b", big.NewInt(1)); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("missing pool: expected ErrPoolNotFound, got %v", err)
	}
}

func TestRepayLoanRoundTrip(t *testing.T) {
	engine, state := newTestEngine(t)
	createTestPool(t, engine)

	_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}

	total := QuoteTotal(big.NewInt(100_000_000), 50)
	if total.Cmp(big.NewInt(100_500_000)) != 0 {
		t.Fatalf("expected total 100500000, got %s", total)
	}
	if err := engine.RepayLoan("pool-1", capability, total); err != nil {
		t.Fatalf("repay loan: %v", err)
	}

	pool := state.pools["pool-1"]
	if pool.Balance.Cmp(big.NewInt(1_000_500_000)) != 0 {
		t.Fatalf("expected balance 1000500000 after repay, got %s", pool.Balance)
	}
	if pool.CumulativeFees.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("expected cumulative fees 500000, got %s", pool.CumulativeFees)
	}
	if len(pool.Outstanding) != 0 {
		t.Fatalf("expected no outstanding loans, got %d", len(pool.Outstanding))
	}
}

func TestRepayLoanCapabilitySingleUse(t *testing.T) {
	engine, _ := newTestEngine(t)
	createTestPool(t, engine)

	_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	repayment := QuoteTotal(big.NewInt(1_000_000), 50)
	if err := engine.RepayLoan("pool-1", capability, repayment); err != nil {
		t.Fatalf("first repay: %v", err)
	}
	if err := engine.RepayLoan("pool-1", capability, repayment); !errors.Is(err, ErrLoanAlreadyRepaid) {
		t.Fatalf("second repay: expected ErrLoanAlreadyRepaid, got %v", err)
	}
}

func TestRepayLoanRejectsForeignCapability(t *testing.T) {
	engine, _ := newTestEngine(t)
	createTestPool(t, engine)
	if _, err := engine.CreatePool("pool-2", "owner-addr", big.NewInt(1_000_000_000), 50, nil); err != nil {
		t.Fatalf("create second pool: %v", err)
	}

	_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	repayment := QuoteTotal(big.NewInt(1_000_000), 50)
	if err := engine.RepayLoan("pool-2", capability, repayment); !errors.Is(err, ErrCapabilityMismatch) {
		t.Fatalf("expected ErrCapabilityMismatch, got %v", err)
	}

	forged := &LoanCapability{PoolID: "pool-1", LoanID: capability.LoanID, Token: "forged"}
	if err := engine.RepayLoan("pool-1", forged, repayment); !errors.Is(err, ErrCapabilityMismatch) {
		t.Fatalf("forged token: expected ErrCapabilityMismatch, got %v", err)
	}
}

func TestRepayLoanRejectsShortRepayment(t *testing.T) {
	engine, _ := newTestEngine(t)
	createTestPool(t, engine)

	_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	short := new(big.Int).Sub(QuoteTotal(big.NewInt(1_000_000), 50), big.NewInt(1))
	if err := engine.RepayLoan("pool-1", capability, short); !errors.Is(err, ErrInsufficientRepayment) {
		t.Fatalf("expected ErrInsufficientRepayment, got %v", err)
	}
}

func TestRepayLoanUnknownID(t *testing.T) {
	engine, _ := newTestEngine(t)
	createTestPool(t, engine)
	capability := &LoanCapability{PoolID: "pool-1", LoanID: 7, Token: "x"}
	if err := engine.RepayLoan("pool-1", capability, big.NewInt(1)); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
}

func TestOwnerGatedOperations(t *testing.T) {
	engine, state := newTestEngine(t)
	createTestPool(t, engine)

	if err := engine.Pause("pool-1", "not-owner"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("pause: expected ErrUnauthorized, got %v", err)
	}
	if err := engine.UpdateParams("pool-1", "not-owner", 10, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("update: expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.WithdrawFees("pool-1", "not-owner", big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("withdraw: expected ErrUnauthorized, got %v", err)
	}

	if err := engine.UpdateParams("pool-1", "owner-addr", 600, nil); !errors.Is(err, ErrFeeRateTooHigh) {
		t.Fatalf("update above ceiling: expected ErrFeeRateTooHigh, got %v", err)
	}
	if err := engine.UpdateParams("pool-1", "owner-addr", 25, big.NewInt(10)); err != nil {
		t.Fatalf("update params: %v", err)
	}
	pool := state.pools["pool-1"]
	if pool.FeeRateBps != 25 || pool.MaxLoanAmount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("params not applied: bps=%d max=%s", pool.FeeRateBps, pool.MaxLoanAmount)
	}
	if pool.Version != SchemaVersion+1 {
		t.Fatalf("expected version bump, got %d", pool.Version)
	}
}

func TestWithdrawFeesBoundedByCollectedTotal(t *testing.T) {
	engine, state := newTestEngine(t)
	createTestPool(t, engine)

	_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if err := engine.RepayLoan("pool-1", capability, QuoteTotal(big.NewInt(100_000_000), 50)); err != nil {
		t.Fatalf("repay loan: %v", err)
	}

	if _, err := engine.WithdrawFees("pool-1", "owner-addr", big.NewInt(500_001)); !errors.Is(err, ErrInsufficientFees) {
		t.Fatalf("expected ErrInsufficientFees, got %v", err)
	}
	withdrawn, err := engine.WithdrawFees("pool-1", "owner-addr", big.NewInt(500_000))
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if withdrawn.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("expected 500000 withdrawn, got %s", withdrawn)
	}
	pool := state.pools["pool-1"]
	if pool.CumulativeFees.Sign() != 0 {
		t.Fatalf("expected zero cumulative fees, got %s", pool.CumulativeFees)
	}
	if pool.Balance.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Fatalf("expected balance back to 1000000000, got %s", pool.Balance)
	}
}

func TestBalanceNeverNegativeAcrossSequences(t *testing.T) {
	engine, state := newTestEngine(t)
	createTestPool(t, engine)

	amounts := []int64{400_000_000, 300_000_000, 300_000_000, 1}
	var capabilities []*LoanCapability
	for _, amount := range amounts {
		_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(amount))
		if err != nil {
			// The last two requests exhaust liquidity; the guard must fire
			// before any state changes.
			if !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("unexpected error for %d: %v", amount, err)
			}
			continue
		}
		capabilities = append(capabilities, capability)
	}
	pool := state.pools["pool-1"]
	if pool.Balance.Sign() < 0 {
		t.Fatalf("balance went negative: %s", pool.Balance)
	}
	for _, capability := range capabilities {
		receipt := pool.Outstanding[capability.LoanID]
		repayment := new(big.Int).Add(receipt.Principal, receipt.Fee)
		if err := engine.RepayLoan("pool-1", capability, repayment); err != nil {
			t.Fatalf("repay %d: %v", capability.LoanID, err)
		}
	}
	if pool.Balance.Sign() < 0 || pool.CumulativeFees.Sign() < 0 {
		t.Fatalf("invariant violated: balance=%s fees=%s", pool.Balance, pool.CumulativeFees)
	}
}

func TestOutstandingSince(t *testing.T) {
	engine, _ := newTestEngine(t)
	base := time.Unix(1_700_000_000, 0)
	engine.nowFn = func() time.Time { return base }
	createTestPool(t, engine)

	if _, _, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(1)); err != nil {
		t.Fatalf("request loan: %v", err)
	}
	engine.nowFn = func() time.Time { return base.Add(time.Hour) }
	if _, _, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(1)); err != nil {
		t.Fatalf("request loan: %v", err)
	}

	stale, err := engine.OutstandingSince("pool-1", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("outstanding since: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != 0 {
		t.Fatalf("expected only loan 0 stale, got %+v", stale)
	}
}

func TestHasLiquidity(t *testing.T) {
	engine, _ := newTestEngine(t)
	createTestPool(t, engine)

	ok, err := engine.HasLiquidity("pool-1", big.NewInt(500_000_000))
	if err != nil || !ok {
		t.Fatalf("expected liquidity for 500000000, got ok=%v err=%v", ok, err)
	}
	ok, _ = engine.HasLiquidity("pool-1", big.NewInt(500_000_001))
	if ok {
		t.Fatal("expected per-loan cap to deny 500000001")
	}
	if err := engine.Pause("pool-1", "owner-addr"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	ok, _ = engine.HasLiquidity("pool-1", big.NewInt(1))
	if ok {
		t.Fatal("expected paused pool to deny liquidity")
	}
}

func TestEventsEmitted(t *testing.T) {
	engine, _ := newTestEngine(t)
	var events []string
	engine.SetEmitter(func(event *Event) { events = append(events, event.Type) })

	createTestPool(t, engine)
	_, capability, err := engine.RequestLoan("pool-1", "borrower-addr", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if err := engine.RepayLoan("pool-1", capability, QuoteTotal(big.NewInt(1_000_000), 50)); err != nil {
		t.Fatalf("repay loan: %v", err)
	}

	want := []string{EventTypePoolCreated, EventTypeLoanInitiated, EventTypeLoanRepaid}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i, eventType := range want {
		if events[i] != eventType {
			t.Fatalf("event %d: expected %s, got %s", i, eventType, events[i])
		}
	}
}
