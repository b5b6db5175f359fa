package flashpool

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

type engineState interface {
	GetPool(id string) (*Pool, error)
	PutPool(id string, pool *Pool) error
}

// Engine applies the flash-loan state transitions to pools held by the wired
// state store. The store serializes all mutations to a given pool, so each
// operation observes a consistent pre-state and commits an atomic post-state.
type Engine struct {
	state         engineState
	feeCeilingBps uint64
	emitter       func(*Event)
	nowFn         func() time.Time
	tokenFn       func() (string, error)
}

// NewEngine constructs an engine with the default fee-rate ceiling.
func NewEngine() *Engine {
	return &Engine{
		feeCeilingBps: DefaultFeeCeilingBps,
		nowFn:         time.Now,
		tokenFn:       mintToken,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeeCeiling overrides the maximum fee rate accepted at pool creation and
// parameter updates. A zero ceiling restores the default.
func (e *Engine) SetFeeCeiling(bps uint64) {
	if e == nil {
		return
	}
	if bps == 0 {
		bps = DefaultFeeCeilingBps
	}
	e.feeCeilingBps = bps
}

// SetEmitter registers the sink that receives pool lifecycle facts.
func (e *Engine) SetEmitter(emit func(*Event)) {
	if e == nil {
		return
	}
	e.emitter = emit
}

func (e *Engine) emit(event *Event) {
	if e.emitter != nil && event != nil {
		e.emitter(event)
	}
}

// CreatePool registers a new pool funded with the owner's initial deposit.
func (e *Engine) CreatePool(id, owner string, deposit *big.Int, feeRateBps uint64, maxLoan *big.Int) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	id = strings.TrimSpace(id)
	owner = strings.TrimSpace(owner)
	if id == "" {
		return nil, fmt.Errorf("flashpool engine: pool id required")
	}
	if owner == "" {
		return nil, fmt.Errorf("flashpool engine: owner required")
	}
	if feeRateBps > e.feeCeilingBps {
		return nil, ErrFeeRateTooHigh
	}
	if deposit == nil || deposit.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if existing, err := e.state.GetPool(id); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrPoolExists
	}

	pool := &Pool{
		ID:             id,
		Owner:          owner,
		Balance:        new(big.Int).Set(deposit),
		FeeRateBps:     feeRateBps,
		CumulativeFees: big.NewInt(0),
		Version:        SchemaVersion,
		MaxLoanAmount:  cloneBig(maxLoan),
		Outstanding:    make(map[uint64]*LoanReceipt),
	}
	if err := e.state.PutPool(id, pool); err != nil {
		return nil, err
	}
	e.emit(newPoolEvent(EventTypePoolCreated, pool))
	return pool, nil
}

// RequestLoan debits the principal from the pool, records the receipt under
// the next loan id, and mints the capability that alone can repay it. The
// returned funds value is the amount released to the borrower.
func (e *Engine) RequestLoan(poolID, borrower string, amount *big.Int) (*big.Int, *LoanCapability, error) {
	if e == nil || e.state == nil {
		return nil, nil, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, nil, err
	}
	if pool.Paused {
		return nil, nil, ErrPoolPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if pool.MaxLoanAmount != nil && pool.MaxLoanAmount.Sign() > 0 && amount.Cmp(pool.MaxLoanAmount) > 0 {
		return nil, nil, ErrInvalidAmount
	}
	if amount.Cmp(pool.Balance) > 0 {
		return nil, nil, ErrInsufficientBalance
	}

	token, err := e.tokenFn()
	if err != nil {
		return nil, nil, fmt.Errorf("flashpool engine: mint capability: %w", err)
	}

	receipt := &LoanReceipt{
		ID:        pool.LoanCounter,
		Borrower:  strings.TrimSpace(borrower),
		Principal: new(big.Int).Set(amount),
		Fee:       QuoteFee(amount, pool.FeeRateBps),
		IssuedAt:  e.nowFn().Unix(),
		Token:     token,
	}

	pool.Balance = new(big.Int).Sub(pool.Balance, amount)
	pool.Outstanding[receipt.ID] = receipt
	pool.LoanCounter++
	pool.TotalLoansIssued++

	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return nil, nil, err
	}

	capability := &LoanCapability{PoolID: pool.ID, LoanID: receipt.ID, Token: token}
	e.emit(newLoanEvent(EventTypeLoanInitiated, pool, receipt))
	return new(big.Int).Set(amount), capability, nil
}

// RepayLoan redeems the capability against its receipt. The repayment must
// cover principal plus fee; on success the receipt is removed, the fee is
// accrued, and the capability is spent in the same mutation, so a second
// redemption of the same capability cannot succeed.
func (e *Engine) RepayLoan(poolID string, capability *LoanCapability, repayment *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if capability == nil {
		return ErrCapabilityMismatch
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if capability.PoolID != pool.ID {
		return ErrCapabilityMismatch
	}
	receipt, ok := pool.Outstanding[capability.LoanID]
	if !ok {
		// Loan ids are assigned from the monotonic counter, so an id below
		// it that is no longer outstanding has been settled already.
		if capability.LoanID < pool.LoanCounter {
			return ErrLoanAlreadyRepaid
		}
		return ErrLoanNotFound
	}
	if receipt.Token != capability.Token {
		return ErrCapabilityMismatch
	}
	required := new(big.Int).Add(receipt.Principal, receipt.Fee)
	if repayment == nil || repayment.Cmp(required) < 0 {
		return ErrInsufficientRepayment
	}

	pool.Balance = new(big.Int).Add(pool.Balance, repayment)
	pool.CumulativeFees = new(big.Int).Add(pool.CumulativeFees, receipt.Fee)
	receipt.Repaid = true
	delete(pool.Outstanding, receipt.ID)

	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}
	e.emit(newLoanEvent(EventTypeLoanRepaid, pool, receipt))
	return nil
}

// Pause halts loan issuance on the pool. Owner only.
func (e *Engine) Pause(poolID, caller string) error {
	return e.setPaused(poolID, caller, true, EventTypePoolPaused)
}

// Resume re-enables loan issuance on the pool. Owner only.
func (e *Engine) Resume(poolID, caller string) error {
	return e.setPaused(poolID, caller, false, EventTypePoolResumed)
}

func (e *Engine) setPaused(poolID, caller string, paused bool, eventType string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(caller), pool.Owner) {
		return ErrUnauthorized
	}
	if pool.Paused == paused {
		return nil
	}
	pool.Paused = paused
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}
	e.emit(newPoolEvent(eventType, pool))
	return nil
}

// UpdateParams replaces the fee rate and per-loan maximum. Owner only; the
// fee-rate ceiling applies exactly as at creation.
func (e *Engine) UpdateParams(poolID, caller string, feeRateBps uint64, maxLoan *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(caller), pool.Owner) {
		return ErrUnauthorized
	}
	if feeRateBps > e.feeCeilingBps {
		return ErrFeeRateTooHigh
	}
	pool.FeeRateBps = feeRateBps
	pool.MaxLoanAmount = cloneBig(maxLoan)
	pool.Version++
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}
	e.emit(newPoolEvent(EventTypeParamsUpdated, pool))
	return nil
}

// WithdrawFees releases collected fees to the owner. The withdrawal debits
// both the cumulative fee tally and the pool balance.
func (e *Engine) WithdrawFees(poolID, caller string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(caller), pool.Owner) {
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(pool.CumulativeFees) > 0 {
		return nil, ErrInsufficientFees
	}
	if amount.Cmp(pool.Balance) > 0 {
		return nil, ErrInsufficientBalance
	}
	pool.CumulativeFees = new(big.Int).Sub(pool.CumulativeFees, amount)
	pool.Balance = new(big.Int).Sub(pool.Balance, amount)
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return nil, err
	}
	e.emit(newPoolEvent(EventTypeFeesWithdrawn, pool))
	return new(big.Int).Set(amount), nil
}

// GetPool returns the pool snapshot for queries.
func (e *Engine) GetPool(poolID string) (PoolSnapshot, error) {
	if e == nil || e.state == nil {
		return PoolSnapshot{}, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return PoolSnapshot{}, err
	}
	return pool.Snapshot(), nil
}

// OutstandingCount reports the number of loans issued but not yet repaid.
func (e *Engine) OutstandingCount(poolID string) (int, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return 0, err
	}
	return len(pool.Outstanding), nil
}

// OutstandingSince lists receipts issued at or before the cutoff that remain
// unrepaid. The engine takes no action on them; the listing exists so
// operators can see liquidity that has been out for too long.
func (e *Engine) OutstandingSince(poolID string, cutoff time.Time) ([]*LoanReceipt, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	var stale []*LoanReceipt
	limit := cutoff.Unix()
	for _, receipt := range pool.Outstanding {
		if receipt.IssuedAt <= limit {
			stale = append(stale, receipt.Clone())
		}
	}
	return stale, nil
}

// HasLiquidity reports whether the pool can currently fund a loan of the
// given amount, honoring both the balance and the per-loan maximum.
func (e *Engine) HasLiquidity(poolID string, amount *big.Int) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return false, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, nil
	}
	if pool.Paused {
		return false, nil
	}
	if pool.MaxLoanAmount != nil && pool.MaxLoanAmount.Sign() > 0 && amount.Cmp(pool.MaxLoanAmount) > 0 {
		return false, nil
	}
	return amount.Cmp(pool.Balance) <= 0, nil
}

func (e *Engine) loadPool(poolID string) (*Pool, error) {
	pool, err := e.state.GetPool(strings.TrimSpace(poolID))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if pool.Balance == nil {
		pool.Balance = big.NewInt(0)
	}
	if pool.CumulativeFees == nil {
		pool.CumulativeFees = big.NewInt(0)
	}
	if pool.Outstanding == nil {
		pool.Outstanding = make(map[uint64]*LoanReceipt)
	}
	return pool, nil
}

func mintToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
