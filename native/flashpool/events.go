package flashpool

import (
	"strconv"
)

const (
	EventTypePoolCreated   = "flashloan.pool.created"
	EventTypeLoanInitiated = "flashloan.loan.initiated"
	EventTypeLoanRepaid    = "flashloan.loan.repaid"
	EventTypePoolPaused    = "flashloan.pool.paused"
	EventTypePoolResumed   = "flashloan.pool.resumed"
	EventTypeParamsUpdated = "flashloan.pool.params_updated"
	EventTypeFeesWithdrawn = "flashloan.fees.withdrawn"
)

// Event is the structured fact emitted by pool mutations. Attributes use
// string values so the payload serializes uniformly across transports.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func newPoolEvent(eventType string, p *Pool) *Event {
	attrs := map[string]string{
		"poolId":  p.ID,
		"owner":   p.Owner,
		"balance": bigString(p.Balance),
		"feeBps":  strconv.FormatUint(p.FeeRateBps, 10),
		"version": strconv.FormatUint(p.Version, 10),
	}
	return &Event{Type: eventType, Attributes: attrs}
}

func newLoanEvent(eventType string, p *Pool, r *LoanReceipt) *Event {
	attrs := map[string]string{
		"poolId":    p.ID,
		"loanId":    strconv.FormatUint(r.ID, 10),
		"borrower":  r.Borrower,
		"principal": bigString(r.Principal),
		"fee":       bigString(r.Fee),
	}
	return &Event{Type: eventType, Attributes: attrs}
}
