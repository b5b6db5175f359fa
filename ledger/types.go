package ledger

// GasBreakdown mirrors the resource-cost summary returned by dry runs and
// committed executions.
type GasBreakdown struct {
	Computation   uint64 `json:"computationCost"`
	Storage       uint64 `json:"storageCost"`
	StorageRebate uint64 `json:"storageRebate"`
}

// Net returns computation + storage - rebate, floored at zero.
func (g GasBreakdown) Net() uint64 {
	total := g.Computation + g.Storage
	if g.StorageRebate >= total {
		return 0
	}
	return total - g.StorageRebate
}

// Execution status values reported by the node.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// DryRunResult is the outcome of a non-committing simulation.
type DryRunResult struct {
	Status  string       `json:"status"`
	Error   string       `json:"error,omitempty"`
	GasUsed GasBreakdown `json:"gasUsed"`
}

// ExecuteResult is the outcome of a committed transaction. Effects carry the
// objects the execution handed back to the sender, such as the loan id and
// capability token minted by a loan request.
type ExecuteResult struct {
	Digest  string            `json:"digest"`
	Status  string            `json:"status"`
	Error   string            `json:"error,omitempty"`
	GasUsed GasBreakdown      `json:"gasUsed"`
	Effects map[string]string `json:"effects,omitempty"`
}

// PoolState mirrors the pool snapshot JSON served by the node.
type PoolState struct {
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

// Stats mirrors the aggregate counters served by the node.
type Stats struct {
	Pools            int    `json:"pools"`
	TotalLoansIssued uint64 `json:"totalLoansIssued"`
	OutstandingLoans int    `json:"outstandingLoans"`
	TotalLiquidity   string `json:"totalLiquidity"`
	CumulativeFees   string `json:"cumulativeFees"`
}
