package strategy

import (
	"ratchet/internal/logger"
	"ratchet/internal/position"
)

// BuyingPower is the cash value that can be spent at price without breaching
// the initial margin.
func (e *Engine) BuyingPower(quantity, funding, price float64) float64 {
	im := e.cfg.InitialMargin
	return (1-im)*(quantity*price+funding)/im + funding
}

// SellableValue is the value that can be sold at price, including opening a
// short against the margin.
func (e *Engine) SellableValue(quantity, funding, price float64) float64 {
	v := (quantity*price + funding) / e.cfg.InitialMargin
	if quantity < 0 {
		v += quantity * price
	}
	return v
}

// Quote is the outcome of sizing one candidate order.
type Quote struct {
	Side           position.Side
	StopPrice      float64
	Available      float64
	Size           float64
	EquityBefore   float64
	EquityAfter    float64
	Profit         float64
	Accepted       bool
	RejectedReason string
}

// Quote sizes an order at price and simulates its fill on a clone of rec.
// rec is never modified.
func (e *Engine) Quote(rec *position.Record, side position.Side, price float64) Quote {
	q := Quote{Side: side, StopPrice: price}
	if price <= 0 || !finite(price) {
		q.RejectedReason = "non-positive price"
		return q
	}
	if side == position.SideBuy {
		q.Available = e.BuyingPower(rec.Quantity(), rec.Funding(), price)
	} else {
		q.Available = e.SellableValue(rec.Quantity(), rec.Funding(), price)
	}
	if q.Available <= 0 || !finite(q.Available) {
		q.RejectedReason = "insufficient purchase power"
		return q
	}
	q.Size = q.Available * rec.TradeFraction() / price

	clone, ed := rec.Clone()
	q.EquityBefore = clone.Equity()
	notional := q.Size * price
	ed.Apply(side, position.Execution{
		Quantity:   q.Size,
		Price:      price,
		Cost:       notional,
		Commission: e.cfg.Commission(notional),
	})
	q.EquityAfter = clone.Equity()

	if q.EquityBefore <= 0 {
		q.RejectedReason = "non-positive equity"
		return q
	}
	q.Profit = (q.EquityAfter - q.EquityBefore) / q.EquityBefore
	if decimalLT(q.Profit, e.cfg.MinProfitPct) {
		q.RejectedReason = "below minimum profit"
		return q
	}
	q.Accepted = true
	return q
}

// Evaluate returns the order size for a candidate stop, or false when the
// action should be abandoned.
func (e *Engine) Evaluate(rec *position.Record, side position.Side, price float64) (float64, bool) {
	q := e.Quote(rec, side, price)
	if !q.Accepted {
		logger.Debugf("[strategy] %s %s @%.8f skipped: %s (available=%.8f profit=%.6f)",
			rec.Symbol(), side, price, q.RejectedReason, q.Available, q.Profit)
		return 0, false
	}
	return q.Size, true
}
