package estimator

import (
	"context"
	"fmt"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
)

// DefaultMarginPercent applies the 1.2x safety margin to simulated costs.
const DefaultMarginPercent = 120

// Result is the outcome of one cost estimate.
type Result struct {
	Viable       bool
	Reason       string
	RawCost      uint64
	MarginedCost uint64
	Breakdown    ledger.GasBreakdown
}

type dryRunner interface {
	DryRun(ctx context.Context, endpoint, txBytes string) (*ledger.DryRunResult, error)
}

// Estimator simulates a prospective transaction and decides whether its
// margin-adjusted cost fits under the configured ceiling. It holds no mutable
// state: the result is a pure function of the simulation outcome and the two
// configured constants.
type Estimator struct {
	client        dryRunner
	executor      *ledger.Executor
	marginPercent uint64
	ceiling       uint64
}

// New builds an estimator. A zero marginPercent selects the default 120%.
func New(client dryRunner, executor *ledger.Executor, marginPercent, ceiling uint64) *Estimator {
	if marginPercent == 0 {
		marginPercent = DefaultMarginPercent
	}
	return &Estimator{
		client:        client,
		executor:      executor,
		marginPercent: marginPercent,
		ceiling:       ceiling,
	}
}

// Estimate dry-runs the transaction through the resilient executor and
// applies the margin and ceiling checks to the simulated cost.
func (e *Estimator) Estimate(ctx context.Context, txBytes string) (*Result, error) {
	var simulated *ledger.DryRunResult
	err := e.executor.Execute(ctx, func(ctx context.Context, endpoint string) error {
		result, dryErr := e.client.DryRun(ctx, endpoint, txBytes)
		if dryErr != nil {
			return dryErr
		}
		simulated = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("estimator: dry run: %w", err)
	}

	if simulated.Status != ledger.StatusSuccess {
		reason := "would fail on execution"
		if simulated.Error != "" {
			reason = fmt.Sprintf("would fail on execution: %s", simulated.Error)
		}
		return &Result{Viable: false, Reason: reason}, nil
	}

	raw := simulated.GasUsed.Net()
	margined := MarginCost(raw, e.marginPercent)
	result := &Result{
		Viable:       margined <= e.ceiling,
		RawCost:      raw,
		MarginedCost: margined,
		Breakdown:    simulated.GasUsed,
	}
	if !result.Viable {
		result.Reason = fmt.Sprintf("estimated cost %d exceeds ceiling %d", margined, e.ceiling)
	}
	return result, nil
}

// MarginCost returns ceil(raw * percent / 100) in integer arithmetic.
func MarginCost(raw, percent uint64) uint64 {
	if raw == 0 {
		return 0
	}
	return (raw*percent + 99) / 100
}
