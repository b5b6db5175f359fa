package flashpool

import (
	"math/big"
)

// SchemaVersion is stamped onto every pool at creation and bumped by
// parameter updates so downstream consumers can detect stale snapshots.
const SchemaVersion uint64 = 1

// Pool captures the authoritative accounting state for one flash-loan
// liquidity pool. Amount values are denominated in the smallest currency unit
// and expressed as big integers to match on-chain precision.
type Pool struct {
	// ID uniquely identifies the pool on the ledger.
	ID string
	// Owner is the address that created the pool and may administer it.
	Owner string
	// Balance is the liquidity currently held by the pool.
	Balance *big.Int
	// FeeRateBps is the loan fee in basis points out of 10,000.
	FeeRateBps uint64
	// Paused halts new loan issuance when set. Repayments are always
	// accepted so outstanding capital can return.
	Paused bool
	// LoanCounter is the monotonically increasing id assigned to the next
	// loan issued from this pool.
	LoanCounter uint64
	// TotalLoansIssued counts every loan ever issued by the pool.
	TotalLoansIssued uint64
	// CumulativeFees accumulates every fee collected by repayments and is
	// the ceiling for owner fee withdrawals.
	CumulativeFees *big.Int
	// Version tracks the pool schema plus parameter-update generation.
	Version uint64
	// MaxLoanAmount caps the principal of a single loan.
	MaxLoanAmount *big.Int
	// Outstanding holds the receipt for every loan issued but not yet
	// repaid, keyed by loan id.
	Outstanding map[uint64]*LoanReceipt
}

// LoanReceipt records one outstanding borrow against a pool. A receipt is
// created at issuance and deleted when its capability redeems the repayment.
type LoanReceipt struct {
	// ID is the loan identifier, unique within the pool.
	ID uint64
	// Borrower is the address the principal was released to.
	Borrower string
	// Principal is the amount debited from the pool at issuance.
	Principal *big.Int
	// Fee is the repayment surcharge fixed at issuance time.
	Fee *big.Int
	// IssuedAt is the unix timestamp of issuance.
	IssuedAt int64
	// Repaid is set in the same mutation that removes the receipt from the
	// outstanding set; a receipt with Repaid set never persists.
	Repaid bool
	// Token binds the receipt to the capability minted alongside it. It is
	// never exposed through snapshots or events.
	Token string
}

// LoanCapability is the single-use authorization returned to the borrower at
// issuance. It is bound to exactly one pool and loan id and is consumed by the
// repayment that redeems it.
type LoanCapability struct {
	PoolID string
	LoanID uint64

	// Token is the non-forgeable secret matched against the receipt. It is
	// invalidated together with the receipt under the pool's serialization.
	Token string
}

// PoolSnapshot is the read-only view served to queries and RPC consumers.
type PoolSnapshot struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	Balance          string `json:"balance"`
	FeeRateBps       uint64 `json:"feeRateBps"`
	Paused           bool   `json:"paused"`
	LoanCounter      uint64 `json:"loanCounter"`
	TotalLoansIssued uint64 `json:"totalLoansIssued"`
	CumulativeFees   string `json:"cumulativeFees"`
	Version          uint64 `json:"version"`
	MaxLoanAmount    string `json:"maxLoanAmount"`
	OutstandingLoans int    `json:"outstandingLoans"`
}

// Snapshot renders the pool into its externally visible form.
func (p *Pool) Snapshot() PoolSnapshot {
	if p == nil {
		return PoolSnapshot{}
	}
	return PoolSnapshot{
		ID:               p.ID,
		Owner:            p.Owner,
		Balance:          bigString(p.Balance),
		FeeRateBps:       p.FeeRateBps,
		Paused:           p.Paused,
		LoanCounter:      p.LoanCounter,
		TotalLoansIssued: p.TotalLoansIssued,
		CumulativeFees:   bigString(p.CumulativeFees),
		Version:          p.Version,
		MaxLoanAmount:    bigString(p.MaxLoanAmount),
		OutstandingLoans: len(p.Outstanding),
	}
}

// Clone returns a deep copy of the pool. Dry runs mutate the copy so the
// committed state never observes a simulation.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	cloned := &Pool{
		ID:               p.ID,
		Owner:            p.Owner,
		Balance:          cloneBig(p.Balance),
		FeeRateBps:       p.FeeRateBps,
		Paused:           p.Paused,
		LoanCounter:      p.LoanCounter,
		TotalLoansIssued: p.TotalLoansIssued,
		CumulativeFees:   cloneBig(p.CumulativeFees),
		Version:          p.Version,
		MaxLoanAmount:    cloneBig(p.MaxLoanAmount),
		Outstanding:      make(map[uint64]*LoanReceipt, len(p.Outstanding)),
	}
	for id, receipt := range p.Outstanding {
		cloned.Outstanding[id] = receipt.Clone()
	}
	return cloned
}

// Clone returns a deep copy of the receipt.
func (r *LoanReceipt) Clone() *LoanReceipt {
	if r == nil {
		return nil
	}
	return &LoanReceipt{
		ID:        r.ID,
		Borrower:  r.Borrower,
		Principal: cloneBig(r.Principal),
		Fee:       cloneBig(r.Fee),
		IssuedAt:  r.IssuedAt,
		Repaid:    r.Repaid,
		Token:     r.Token,
	}
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
