package position

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decimalEps  = decimal.NewFromFloat(1e-8)
	decimalZero = decimal.Zero
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

// decimalEqual treats prices within 1e-8 as the same rung.
func decimalEqual(a, b float64) bool {
	return decFromFloat(a).Sub(decFromFloat(b)).Abs().Cmp(decimalEps) <= 0
}

func nearZero(v float64) bool {
	return decFromFloat(v).Abs().Cmp(decimalEps) <= 0
}

// PricesEqual exposes the rung comparison for collaborators that dedupe prices.
func PricesEqual(a, b float64) bool { return decimalEqual(a, b) }
