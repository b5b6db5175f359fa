package flashpool

import (
	"math/big"
	"testing"
)

func TestQuoteFeeFloorRounds(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint64
		fee    int64
	}{
		{100_000_000, 50, 500_000},
		{1, 50, 0},
		{199, 50, 0},
		{10_000, 1, 1},
		{9_999, 1, 0},
		{1_000_000, 500, 50_000},
		{0, 500, 0},
	}
	for _, tc := range cases {
		fee := QuoteFee(big.NewInt(tc.amount), tc.bps)
		if fee.Cmp(big.NewInt(tc.fee)) != 0 {
			t.Fatalf("QuoteFee(%d, %d): expected %d, got %s", tc.amount, tc.bps, tc.fee, fee)
		}
	}
}

func TestQuoteTotal(t *testing.T) {
	total := QuoteTotal(big.NewInt(100_000_000), 50)
	if total.Cmp(big.NewInt(100_500_000)) != 0 {
		t.Fatalf("expected 100500000, got %s", total)
	}
	if QuoteTotal(nil, 50).Sign() != 0 {
		t.Fatal("nil amount must quote zero")
	}
}
