package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DollarsToCents converts a float64 dollar amount to int64 cents.
// It goes through decimal to recover the shortest exact decimal
// representation of the float, then rejects anything with more than
// 2 decimal places so sub-cent input can never slip into the ledger.
func DollarsToCents(f float64) (int64, error) {
	d := decimal.NewFromFloat(f)
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return d.Shift(2).IntPart(), nil
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return decimal.New(c, -2).InexactFloat64()
}

// FormatCents renders cents as a fixed two-decimal dollar string,
// e.g. 1050 → "10.50".
func FormatCents(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}
