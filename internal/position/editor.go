package position

import "fmt"

// Editor is the only handle that can change a Record. The orchestrator keeps
// the one issued for each live record; speculative clones get their own.
type Editor struct {
	r *Record
}

// Record returns the record this editor mutates.
func (e *Editor) Record() *Record { return e.r }

func (e *Editor) SetRunState(s RunState)     { e.r.runState = s }
func (e *Editor) SetQuantity(q float64)      { e.r.quantity = q }
func (e *Editor) SetFunding(f float64)       { e.r.funding = f }
func (e *Editor) SetTotalCost(c float64)     { e.r.totalCost = c }
func (e *Editor) SetBuyOrderLimit(p float64) { e.r.buyOrderLimit = p }
func (e *Editor) SetSellOrderLimit(p float64) {
	e.r.sellOrderLimit = p
}
func (e *Editor) SetActiveBuyOrderID(id string)  { e.r.activeBuyOrderID = id }
func (e *Editor) SetActiveSellOrderID(id string) { e.r.activeSellOrderID = id }

func (e *Editor) SetBounds(upper, lower float64) {
	e.r.upperBound = upper
	e.r.lowerBound = lower
}

func (e *Editor) ClearBounds() { e.SetBounds(Unset, Unset) }

func (e *Editor) SetTrailingOffset(v float64) {
	if v > 0 {
		e.r.trailingOffset = v
	}
}

func (e *Editor) SetTradeFraction(v float64) { e.r.tradeFraction = normalizeFraction(v) }

func (e *Editor) SetMarginProtection(v float64) {
	if v <= 0 {
		v = e.r.trailingOffset
	}
	e.r.marginProtection = v
}

func (e *Editor) SetSafetyBands(n int) {
	if n <= 0 {
		n = 1
	}
	e.r.safetyBands = n
}

// SetStopLimit arms the stop price for side.
func (e *Editor) SetStopLimit(side Side, price float64) {
	if side == SideBuy {
		e.r.buyOrderLimit = price
		return
	}
	e.r.sellOrderLimit = price
}

func (e *Editor) SetActiveOrderID(side Side, id string) {
	if side == SideBuy {
		e.r.activeBuyOrderID = id
		return
	}
	e.r.activeSellOrderID = id
}

func (e *Editor) AppendEmergencyOrder(eo EmergencyOrder) {
	e.r.emergencyOrders = append(e.r.emergencyOrders, eo)
}

// RemoveEmergencyOrder drops the rung with orderID and reports whether it was
// tracked.
func (e *Editor) RemoveEmergencyOrder(orderID string) bool {
	for i, eo := range e.r.emergencyOrders {
		if eo.OrderID != orderID {
			continue
		}
		e.r.emergencyOrders = append(e.r.emergencyOrders[:i:i], e.r.emergencyOrders[i+1:]...)
		return true
	}
	return false
}

func (e *Editor) ClearEmergencyOrders() { e.r.emergencyOrders = nil }

// SeedAveragePrice initializes the cost basis of an unpriced position from a
// market price. Total cost follows so later fills blend correctly.
func (e *Editor) SeedAveragePrice(price float64) {
	if price <= 0 {
		return
	}
	e.r.averagePrice = price
	e.r.totalCost = price * e.r.quantity
}

// Restore overwrites every field from a snapshot. Used when a record is
// re-seeded from storage; the symbol must match.
func (e *Editor) Restore(s Snapshot) error {
	if NormalizeSymbol(s.Symbol) != e.r.symbol {
		return fmt.Errorf("%w: have %s, snapshot %s", ErrSymbolMismatch, e.r.symbol, s.Symbol)
	}
	issued := e.r.editorIssued
	restored, err := FromSnapshot(s)
	if err != nil {
		return err
	}
	*e.r = *restored
	e.r.editorIssued = issued
	return nil
}
