package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/native/flashpool"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/storage"
)

const recentEventCap = 256

// Node executes flash-loan transactions against the persistent pool store.
// One mutex linearizes every mutation, standing in for consensus ordering:
// each transaction observes a consistent pre-state and commits atomically.
type Node struct {
	mu     sync.Mutex
	store  storage.PoolStore
	engine *flashpool.Engine
	log    *slog.Logger

	// executed records committed results by envelope digest so resubmitting
	// the same signed envelope replays the recorded outcome instead of
	// mutating state twice.
	executed map[string]*ledger.ExecuteResult
	events   []*flashpool.Event
}

// NewNode wires a node over the given store.
func NewNode(store storage.PoolStore, log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	engine := flashpool.NewEngine()
	engine.SetState(store)
	node := &Node{
		store:    store,
		engine:   engine,
		log:      log,
		executed: make(map[string]*ledger.ExecuteResult),
	}
	engine.SetEmitter(node.recordEvent)
	return node
}

// SetFeeCeiling overrides the maximum fee rate accepted at pool creation.
func (n *Node) SetFeeCeiling(bps uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetFeeCeiling(bps)
}

func (n *Node) recordEvent(event *flashpool.Event) {
	n.events = append(n.events, event)
	if len(n.events) > recentEventCap {
		n.events = n.events[len(n.events)-recentEventCap:]
	}
	n.log.Info("pool event", "type", event.Type, "poolId", event.Attributes["poolId"])
}

// GetPool returns the committed snapshot for the pool id.
func (n *Node) GetPool(id string) (flashpool.PoolSnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetPool(id)
}

// RecentEvents lists the most recently emitted pool facts, newest last.
func (n *Node) RecentEvents() []*flashpool.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := make([]*flashpool.Event, len(n.events))
	copy(events, n.events)
	return events
}

// Stats aggregates the committed counters across all pools.
func (n *Node) Stats() (*ledger.Stats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pools, err := n.store.ListPools()
	if err != nil {
		return nil, err
	}
	stats := &ledger.Stats{Pools: len(pools)}
	liquidity := big.NewInt(0)
	fees := big.NewInt(0)
	for _, pool := range pools {
		stats.TotalLoansIssued += pool.TotalLoansIssued
		stats.OutstandingLoans += len(pool.Outstanding)
		if pool.Balance != nil {
			liquidity.Add(liquidity, pool.Balance)
		}
		if pool.CumulativeFees != nil {
			fees.Add(fees, pool.CumulativeFees)
		}
	}
	stats.TotalLiquidity = liquidity.String()
	stats.CumulativeFees = fees.String()
	return stats, nil
}

// DryRun executes the transaction against a deep copy of the referenced pool
// and reports the outcome plus the deterministic gas budget. Committed state
// is never touched.
func (n *Node) DryRun(txBytes string) (*ledger.DryRunResult, error) {
	tx, err := DecodeTransaction(txBytes)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	overlay := storage.NewMemoryPoolStore()
	if poolID := strings.TrimSpace(tx.PoolID); poolID != "" {
		pool, loadErr := n.store.GetPool(poolID)
		if loadErr != nil {
			return nil, loadErr
		}
		overlay.Seed(pool)
	}
	scratch := flashpool.NewEngine()
	scratch.SetState(overlay)

	if _, applyErr := applyTransaction(scratch, tx, Digest(txBytes)); applyErr != nil {
		return &ledger.DryRunResult{
			Status: ledger.StatusFailure,
			Error:  applyErr.Error(),
		}, nil
	}
	return &ledger.DryRunResult{
		Status:  ledger.StatusSuccess,
		GasUsed: gasFor(tx, len(txBytes)),
	}, nil
}

// Execute commits the transaction. The envelope digest doubles as a dedupe
// key: a digest seen before replays the recorded result, which keeps
// at-most-once semantics when a client resubmits after losing a response.
func (n *Node) Execute(txBytes string) (*ledger.ExecuteResult, error) {
	tx, err := DecodeTransaction(txBytes)
	if err != nil {
		return nil, err
	}
	digest := Digest(txBytes)

	n.mu.Lock()
	defer n.mu.Unlock()

	if recorded, ok := n.executed[digest]; ok {
		n.log.Info("replaying recorded transaction", "digest", digest, "action", tx.Action)
		replay := *recorded
		return &replay, nil
	}

	effects, err := applyTransaction(n.engine, tx, digest)
	if err != nil {
		return nil, err
	}

	result := &ledger.ExecuteResult{
		Digest:  digest,
		Status:  ledger.StatusSuccess,
		GasUsed: gasFor(tx, len(txBytes)),
		Effects: effects,
	}
	n.executed[digest] = result
	n.log.Info("transaction committed", "digest", digest, "action", tx.Action, "poolId", effects["poolId"])
	replay := *result
	return &replay, nil
}

// applyTransaction dispatches the envelope to the engine and collects the
// effects returned to the sender.
func applyTransaction(engine *flashpool.Engine, tx *Transaction, digest string) (map[string]string, error) {
	effects := map[string]string{}
	switch tx.Action {
	case ActionCreatePool:
		deposit, err := parseAmount(tx.Amount, "deposit")
		if err != nil {
			return nil, err
		}
		maxLoan, err := parseOptionalAmount(tx.MaxLoan)
		if err != nil {
			return nil, err
		}
		poolID := strings.TrimSpace(tx.PoolID)
		if poolID == "" {
			poolID = derivePoolID(digest)
		}
		pool, err := engine.CreatePool(poolID, tx.Sender, deposit, tx.FeeRateBps, maxLoan)
		if err != nil {
			return nil, err
		}
		effects["poolId"] = pool.ID
	case ActionRequestLoan:
		amount, err := parseAmount(tx.Amount, "amount")
		if err != nil {
			return nil, err
		}
		funds, capability, err := engine.RequestLoan(tx.PoolID, tx.Sender, amount)
		if err != nil {
			return nil, err
		}
		effects["poolId"] = capability.PoolID
		effects["loanId"] = fmt.Sprintf("%d", capability.LoanID)
		effects["capabilityToken"] = capability.Token
		effects["funds"] = funds.String()
		if snapshot, getErr := engine.GetPool(capability.PoolID); getErr == nil {
			effects["fee"] = flashpool.QuoteFee(amount, snapshot.FeeRateBps).String()
		}
	case ActionRepayLoan:
		if tx.Capability == nil {
			return nil, fmt.Errorf("core: repayment capability required")
		}
		repayment, err := parseAmount(tx.Repayment, "repayment")
		if err != nil {
			return nil, err
		}
		capability := &flashpool.LoanCapability{
			PoolID: tx.Capability.PoolID,
			LoanID: tx.Capability.LoanID,
			Token:  tx.Capability.Token,
		}
		if err := engine.RepayLoan(tx.PoolID, capability, repayment); err != nil {
			return nil, err
		}
		effects["poolId"] = tx.PoolID
		effects["loanId"] = fmt.Sprintf("%d", capability.LoanID)
	case ActionPause:
		if err := engine.Pause(tx.PoolID, tx.Sender); err != nil {
			return nil, err
		}
		effects["poolId"] = tx.PoolID
	case ActionResume:
		if err := engine.Resume(tx.PoolID, tx.Sender); err != nil {
			return nil, err
		}
		effects["poolId"] = tx.PoolID
	case ActionUpdateParams:
		maxLoan, err := parseOptionalAmount(tx.MaxLoan)
		if err != nil {
			return nil, err
		}
		if err := engine.UpdateParams(tx.PoolID, tx.Sender, tx.FeeRateBps, maxLoan); err != nil {
			return nil, err
		}
		effects["poolId"] = tx.PoolID
	case ActionWithdrawFees:
		amount, err := parseAmount(tx.Amount, "amount")
		if err != nil {
			return nil, err
		}
		withdrawn, err := engine.WithdrawFees(tx.PoolID, tx.Sender, amount)
		if err != nil {
			return nil, err
		}
		effects["poolId"] = tx.PoolID
		effects["withdrawn"] = withdrawn.String()
	default:
		return nil, errUnknownAction
	}
	return effects, nil
}

func derivePoolID(digest string) string {
	if len(digest) > 16 {
		digest = digest[:16]
	}
	return "pool-" + digest
}
