package position

import "time"

// Snapshot is the full recovery state of a Record.
type Snapshot struct {
	Symbol            string           `json:"symbol"`
	RunState          string           `json:"run_state"`
	AveragePrice      float64          `json:"average_price"`
	TotalCost         float64          `json:"total_cost"`
	Quantity          float64          `json:"quantity"`
	Funding           float64          `json:"funding"`
	SafetyBands       int              `json:"safety_bands"`
	UpperBound        float64          `json:"upper_bound"`
	LowerBound        float64          `json:"lower_bound"`
	TrailingOffset    float64          `json:"trailing_offset"`
	BuyOrderLimit     float64          `json:"buy_order_limit"`
	SellOrderLimit    float64          `json:"sell_order_limit"`
	TradeFraction     float64          `json:"trade_fraction"`
	ActiveBuyOrderID  string           `json:"active_buy_order_id,omitempty"`
	ActiveSellOrderID string           `json:"active_sell_order_id,omitempty"`
	MarginProtection  float64          `json:"margin_protection"`
	EmergencyOrders   []EmergencyOrder `json:"emergency_orders,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		Symbol:            r.symbol,
		RunState:          r.runState.String(),
		AveragePrice:      r.averagePrice,
		TotalCost:         r.totalCost,
		Quantity:          r.quantity,
		Funding:           r.funding,
		SafetyBands:       r.safetyBands,
		UpperBound:        r.upperBound,
		LowerBound:        r.lowerBound,
		TrailingOffset:    r.trailingOffset,
		BuyOrderLimit:     r.buyOrderLimit,
		SellOrderLimit:    r.sellOrderLimit,
		TradeFraction:     r.tradeFraction,
		ActiveBuyOrderID:  r.activeBuyOrderID,
		ActiveSellOrderID: r.activeSellOrderID,
		MarginProtection:  r.marginProtection,
		EmergencyOrders:   r.EmergencyOrders(),
		UpdatedAt:         time.Now(),
	}
}

// FromSnapshot rebuilds a record. Construction rules still apply, so a
// snapshot with an empty symbol or no capital is rejected.
func FromSnapshot(s Snapshot) (*Record, error) {
	r, err := New(Params{
		Symbol:           s.Symbol,
		Funding:          s.Funding,
		Quantity:         s.Quantity,
		TrailingOffset:   s.TrailingOffset,
		TradeFraction:    s.TradeFraction,
		MarginProtection: s.MarginProtection,
		SafetyBands:      s.SafetyBands,
	})
	if err != nil {
		return nil, err
	}
	r.runState = ParseRunState(s.RunState)
	r.averagePrice = s.AveragePrice
	if r.averagePrice < 0 {
		r.averagePrice = 0
	}
	r.totalCost = s.TotalCost
	r.upperBound = s.UpperBound
	r.lowerBound = s.LowerBound
	r.buyOrderLimit = s.BuyOrderLimit
	r.sellOrderLimit = s.SellOrderLimit
	r.activeBuyOrderID = s.ActiveBuyOrderID
	r.activeSellOrderID = s.ActiveSellOrderID
	if len(s.EmergencyOrders) > 0 {
		r.emergencyOrders = append([]EmergencyOrder(nil), s.EmergencyOrders...)
	}
	return r, nil
}
