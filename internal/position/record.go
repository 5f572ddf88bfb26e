// Package position holds the per-symbol position record and the single
// capability (Editor) allowed to mutate it.
package position

import (
	"errors"
	"math"
	"strings"
)

// Unset marks bounds and stop prices that are not armed.
const Unset = -1.0

// NoOrder is the empty venue order id.
const NoOrder = ""

var (
	ErrEmptySymbol  = errors.New("position: symbol is required")
	ErrNoCapital    = errors.New("position: funding and quantity cannot both be zero")
	ErrEditorIssued = errors.New("position: editor already issued")

	ErrSymbolMismatch = errors.New("position: snapshot symbol mismatch")
)

// RunState is the trailing-stop state machine position.
type RunState int

const (
	TriggerRun RunState = iota
	BuyRun
	SellRun
)

func (s RunState) String() string {
	switch s {
	case TriggerRun:
		return "TRIGGER_RUN"
	case BuyRun:
		return "BUY_RUN"
	case SellRun:
		return "SELL_RUN"
	default:
		return "UNKNOWN"
	}
}

// ParseRunState is the inverse of String; unknown names map to TriggerRun.
func ParseRunState(s string) RunState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY_RUN":
		return BuyRun
	case "SELL_RUN":
		return SellRun
	default:
		return TriggerRun
	}
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// EmergencyOrder is a protective stop resting at the venue.
type EmergencyOrder struct {
	OrderID      string  `json:"order_id"`
	Side         Side    `json:"side"`
	PricePerUnit float64 `json:"price_per_unit"`
	Size         float64 `json:"size"`
}

// Params are the construction arguments of a Record.
type Params struct {
	Symbol           string
	Funding          float64
	Quantity         float64
	TrailingOffset   float64
	TradeFraction    float64
	MarginProtection float64
	SafetyBands      int
}

// Record is the authoritative state of one symbol. Everything outside the
// Editor sees it read-only; it carries no lock and must only be touched from
// the goroutine that owns the symbol.
type Record struct {
	symbol   string
	runState RunState

	quantity     float64
	funding      float64
	averagePrice float64
	totalCost    float64

	upperBound     float64
	lowerBound     float64
	buyOrderLimit  float64
	sellOrderLimit float64

	trailingOffset   float64
	tradeFraction    float64
	marginProtection float64
	safetyBands      int

	activeBuyOrderID  string
	activeSellOrderID string
	emergencyOrders   []EmergencyOrder

	editorIssued bool
}

// New validates p and builds a record in TriggerRun with nothing armed.
func New(p Params) (*Record, error) {
	symbol := NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	if p.Funding == 0 && p.Quantity == 0 {
		return nil, ErrNoCapital
	}
	offset := p.TrailingOffset
	if offset <= 0 {
		offset = 1
	}
	protection := p.MarginProtection
	if protection <= 0 {
		protection = offset
	}
	bands := p.SafetyBands
	if bands <= 0 {
		bands = 1
	}
	return &Record{
		symbol:           symbol,
		runState:         TriggerRun,
		quantity:         p.Quantity,
		funding:          p.Funding,
		upperBound:       Unset,
		lowerBound:       Unset,
		buyOrderLimit:    Unset,
		sellOrderLimit:   Unset,
		trailingOffset:   offset,
		tradeFraction:    normalizeFraction(p.TradeFraction),
		marginProtection: protection,
		safetyBands:      bands,
	}, nil
}

// normalizeFraction maps any input into (0,1]. Whole numbers collapse to 1.
func normalizeFraction(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	f = math.Abs(math.Mod(f, 1))
	if f == 0 {
		return 1
	}
	return f
}

func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Editor hands out the mutation capability. It succeeds once per record.
func (r *Record) Editor() (*Editor, error) {
	if r.editorIssued {
		return nil, ErrEditorIssued
	}
	r.editorIssued = true
	return &Editor{r: r}, nil
}

func (r *Record) Symbol() string             { return r.symbol }
func (r *Record) RunState() RunState         { return r.runState }
func (r *Record) Quantity() float64          { return r.quantity }
func (r *Record) Funding() float64           { return r.funding }
func (r *Record) AveragePrice() float64      { return r.averagePrice }
func (r *Record) TotalCost() float64         { return r.totalCost }
func (r *Record) UpperBound() float64        { return r.upperBound }
func (r *Record) LowerBound() float64        { return r.lowerBound }
func (r *Record) BuyOrderLimit() float64     { return r.buyOrderLimit }
func (r *Record) SellOrderLimit() float64    { return r.sellOrderLimit }
func (r *Record) TrailingOffset() float64    { return r.trailingOffset }
func (r *Record) TradeFraction() float64     { return r.tradeFraction }
func (r *Record) MarginProtection() float64  { return r.marginProtection }
func (r *Record) SafetyBands() int           { return r.safetyBands }
func (r *Record) ActiveBuyOrderID() string   { return r.activeBuyOrderID }
func (r *Record) ActiveSellOrderID() string  { return r.activeSellOrderID }
func (r *Record) HasEmergencyOrders() bool   { return len(r.emergencyOrders) > 0 }
func (r *Record) EmergencyOrderCount() int   { return len(r.emergencyOrders) }
func (r *Record) IsLeveraged() bool          { return r.funding < 0 || r.quantity < 0 }
func (r *Record) ActiveOrderID(s Side) string {
	if s == SideBuy {
		return r.activeBuyOrderID
	}
	return r.activeSellOrderID
}

// EmergencyOrders returns a copy of the resting protective orders.
func (r *Record) EmergencyOrders() []EmergencyOrder {
	if len(r.emergencyOrders) == 0 {
		return nil
	}
	out := make([]EmergencyOrder, len(r.emergencyOrders))
	copy(out, r.emergencyOrders)
	return out
}

// FindEmergencyOrder looks up a rung by venue order id.
func (r *Record) FindEmergencyOrder(orderID string) (EmergencyOrder, bool) {
	if orderID == NoOrder {
		return EmergencyOrder{}, false
	}
	for _, eo := range r.emergencyOrders {
		if eo.OrderID == orderID {
			return eo, true
		}
	}
	return EmergencyOrder{}, false
}

// HasEmergencyAt reports whether a rung already rests on side at price.
func (r *Record) HasEmergencyAt(side Side, price float64) (EmergencyOrder, bool) {
	for _, eo := range r.emergencyOrders {
		if eo.Side == side && decimalEqual(eo.PricePerUnit, price) {
			return eo, true
		}
	}
	return EmergencyOrder{}, false
}

// Equity values the position at its own cost basis.
func (r *Record) Equity() float64 {
	return r.averagePrice*r.quantity + r.funding
}
