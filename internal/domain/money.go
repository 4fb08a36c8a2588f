package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are carried as int64 poisha (10^-2 BDT) end to end; decimal math is
// confined to the fee/commission policy below so no float ever touches a
// balance.

// Commission computes amount*rate/100 rounded half-up to the nearest minor
// unit. rate is a percentage (an agent cashing in 200.00 at rate 1.5 earns
// 3.00). A zero rate yields zero.
func Commission(amount int64, rate decimal.Decimal) int64 {
	if rate.IsZero() {
		return 0
	}
	d := decimal.NewFromInt(amount).Mul(rate).Div(decimal.NewFromInt(100))
	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts the ledger accepts.
	return d.Round(0).IntPart()
}

// Fee computes the transfer fee for an amount at the given percentage rate,
// using the same half-up rounding as Commission.
func Fee(amount int64, rate decimal.Decimal) int64 {
	return Commission(amount, rate)
}

// FormatBDT renders poisha as a taka string for logs and descriptions.
func FormatBDT(amount int64) string {
	return fmt.Sprintf("BDT %s", decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).StringFixed(2))
}
