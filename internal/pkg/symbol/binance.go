package symbol

import "strings"

type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	return Normalize(internal)
}

func (BinanceConverter) FromExchange(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// StreamName is the lower-case form used in websocket stream names.
func (BinanceConverter) StreamName(internal string) string {
	return strings.ToLower(Normalize(internal))
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}

var Binance = BinanceConverter{}
