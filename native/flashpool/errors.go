package flashpool

import "errors"

var (
	// ErrNilState indicates the engine was used before wiring a state store.
	ErrNilState = errors.New("flashpool engine: state not configured")
	// ErrPoolExists rejects pool creation for an id already in use.
	ErrPoolExists = errors.New("flashpool engine: pool already exists")
	// ErrPoolNotFound indicates the referenced pool does not exist.
	ErrPoolNotFound = errors.New("flashpool engine: pool not found")
	// ErrFeeRateTooHigh rejects a fee rate above the configured ceiling.
	ErrFeeRateTooHigh = errors.New("flashpool engine: fee rate exceeds ceiling")
	// ErrPoolPaused rejects loan issuance while the pool is paused.
	ErrPoolPaused = errors.New("flashpool engine: pool is paused")
	// ErrInvalidAmount rejects zero amounts and requests above the per-loan cap.
	ErrInvalidAmount = errors.New("flashpool engine: invalid loan amount")
	// ErrInsufficientBalance rejects loans larger than the pool balance.
	ErrInsufficientBalance = errors.New("flashpool engine: insufficient pool balance")
	// ErrLoanNotFound indicates the capability references an unknown loan id.
	ErrLoanNotFound = errors.New("flashpool engine: loan not found")
	// ErrLoanAlreadyRepaid indicates the referenced loan was already settled.
	ErrLoanAlreadyRepaid = errors.New("flashpool engine: loan already repaid")
	// ErrInsufficientRepayment rejects repayments below principal plus fee.
	ErrInsufficientRepayment = errors.New("flashpool engine: repayment below principal plus fee")
	// ErrCapabilityMismatch indicates the capability is bound to a different
	// pool or its token does not match the receipt.
	ErrCapabilityMismatch = errors.New("flashpool engine: capability does not match receipt")
	// ErrUnauthorized rejects owner-only operations from any other caller.
	ErrUnauthorized = errors.New("flashpool engine: caller is not the pool owner")
	// ErrInsufficientFees rejects fee withdrawals above the accumulated total.
	ErrInsufficientFees = errors.New("flashpool engine: withdrawal exceeds collected fees")
)
