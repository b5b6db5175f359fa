package core

import (
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
)

// Deterministic gas schedule. Costs are fixed per action plus a storage
// component scaled by the envelope size, so identical transactions always
// simulate to identical budgets.
const (
	gasPerEnvelopeByte = 2

	computationCreatePool   = 2_400
	computationRequestLoan  = 1_800
	computationRepayLoan    = 1_500
	computationAdmin        = 600
	computationWithdrawFees = 900

	storagePoolObject  = 1_200
	storageLoanReceipt = 760
	storageAdminTouch  = 80

	rebateLoanReceipt = 540
)

// gasFor derives the resource cost of executing the transaction. Repayment
// deletes the receipt object, which is what produces the storage rebate.
func gasFor(tx *Transaction, envelopeSize int) ledger.GasBreakdown {
	breakdown := ledger.GasBreakdown{
		Storage: uint64(envelopeSize) * gasPerEnvelopeByte,
	}
	switch tx.Action {
	case ActionCreatePool:
		breakdown.Computation = computationCreatePool
		breakdown.Storage += storagePoolObject
	case ActionRequestLoan:
		breakdown.Computation = computationRequestLoan
		breakdown.Storage += storageLoanReceipt
	case ActionRepayLoan:
		breakdown.Computation = computationRepayLoan
		breakdown.Storage += storageAdminTouch
		breakdown.StorageRebate = rebateLoanReceipt
	case ActionWithdrawFees:
		breakdown.Computation = computationWithdrawFees
		breakdown.Storage += storageAdminTouch
	default:
		breakdown.Computation = computationAdmin
		breakdown.Storage += storageAdminTouch
	}
	return breakdown
}
