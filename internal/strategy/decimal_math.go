package strategy

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

// decimalGT is a > b beyond float noise.
func decimalGT(a, b float64) bool {
	return decFromFloat(a).Cmp(decFromFloat(b).Add(decimalEps)) > 0
}

// decimalLT is a < b beyond float noise.
func decimalLT(a, b float64) bool {
	return decFromFloat(a).Cmp(decFromFloat(b).Sub(decimalEps)) < 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
