package symbol

import "strings"

// GateConverter maps to Gate.io futures contracts (BTC_USDT).
type GateConverter struct{}

func (GateConverter) ToExchange(internal string) string {
	sym := Parse(internal)
	if sym.Base == "" || sym.Quote == "" {
		return ""
	}
	return sym.Base + "_" + sym.Quote
}

func (GateConverter) FromExchange(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	return Normalize(s)
}

func (GateConverter) Format() Format {
	return FormatGate
}

var Gate = GateConverter{}
