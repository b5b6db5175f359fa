package flashpool

import "math/big"

var basisPoints = big.NewInt(10_000)

// DefaultFeeCeilingBps is the highest fee rate a pool may charge: 5%.
const DefaultFeeCeilingBps uint64 = 500

// QuoteFee returns floor(amount * feeRateBps / 10000).
func QuoteFee(amount *big.Int, feeRateBps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(feeRateBps))
	return fee.Quo(fee, basisPoints)
}

// QuoteTotal returns the full repayment owed for a loan of the given amount:
// principal plus the floor-rounded fee.
func QuoteTotal(amount *big.Int, feeRateBps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Add(amount, QuoteFee(amount, feeRateBps))
}
