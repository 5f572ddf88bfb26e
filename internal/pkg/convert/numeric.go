// Package convert parses the numeric strings venues and feeds send.
package convert

import (
	"math"
	"strconv"
	"strings"
)

// Float parses s after trimming spaces. Empty, malformed and non-finite
// input reports false.
func Float(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatOrZero is Float with failures mapped to 0.
func FloatOrZero(s string) float64 {
	f, _ := Float(s)
	return f
}
