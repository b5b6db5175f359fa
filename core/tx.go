package core

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Transaction actions accepted by the node.
const (
	ActionCreatePool   = "create_pool"
	ActionRequestLoan  = "request_loan"
	ActionRepayLoan    = "repay_loan"
	ActionPause        = "pause"
	ActionResume       = "resume"
	ActionUpdateParams = "update_params"
	ActionWithdrawFees = "withdraw_fees"
)

var (
	errEmptyTx       = errors.New("core: empty transaction")
	errUnknownAction = errors.New("core: unknown transaction action")
)

// CapabilityPayload carries the loan capability inside a repayment envelope.
type CapabilityPayload struct {
	PoolID string `json:"poolId"`
	LoanID uint64 `json:"loanId"`
	Token  string `json:"token"`
}

// Transaction is the signed operation envelope submitted by callers. Signing
// and key custody happen outside the node; the signature travels opaquely so
// the envelope digest covers it.
type Transaction struct {
	Action     string             `json:"action"`
	PoolID     string             `json:"poolId"`
	Sender     string             `json:"sender"`
	Amount     string             `json:"amount,omitempty"`
	Repayment  string             `json:"repayment,omitempty"`
	Capability *CapabilityPayload `json:"capability,omitempty"`
	FeeRateBps uint64             `json:"feeRateBps,omitempty"`
	MaxLoan    string             `json:"maxLoanAmount,omitempty"`
	Nonce      string             `json:"nonce,omitempty"`
	Signature  string             `json:"signature,omitempty"`
}

// DecodeTransaction parses the base64 JSON envelope and validates its shape.
func DecodeTransaction(txBytes string) (*Transaction, error) {
	trimmed := strings.TrimSpace(txBytes)
	if trimmed == "" {
		return nil, errEmptyTx
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("core: decode transaction: %w", err)
	}
	tx := new(Transaction)
	if err := json.Unmarshal(raw, tx); err != nil {
		return nil, fmt.Errorf("core: parse transaction: %w", err)
	}
	tx.Action = strings.ToLower(strings.TrimSpace(tx.Action))
	switch tx.Action {
	case ActionCreatePool, ActionRequestLoan, ActionRepayLoan,
		ActionPause, ActionResume, ActionUpdateParams, ActionWithdrawFees:
	default:
		return nil, errUnknownAction
	}
	if strings.TrimSpace(tx.PoolID) == "" && tx.Action != ActionCreatePool {
		return nil, errors.New("core: transaction pool id required")
	}
	if strings.TrimSpace(tx.Sender) == "" {
		return nil, errors.New("core: transaction sender required")
	}
	return tx, nil
}

// Digest returns the hex sha256 of the raw envelope. A resubmitted envelope
// hashes identically, which is what makes execution replay-safe.
func Digest(txBytes string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(txBytes)))
	return hex.EncodeToString(sum[:])
}

// EncodeTransaction renders the envelope into the base64 wire form. Used by
// the CLI and tests; callers in production sign before encoding.
func EncodeTransaction(tx *Transaction) (string, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func parseAmount(value, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("core: %s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("core: invalid %s %q", field, value)
	}
	return amount, nil
}

func parseOptionalAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("core: invalid amount %q", value)
	}
	return amount, nil
}
