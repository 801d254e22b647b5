package helpers

import "github.com/shopspring/decimal"

// ProportionalShare returns round2(value * part / total). Each sibling is
// rounded on its own, so shares may drift from value by a cent.
func ProportionalShare(value decimal.Decimal, part, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return value.
		Mul(decimal.NewFromInt(int64(part))).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}
