package orchestrator

import (
	"context"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/position"
)

// OnFill applies a venue fill. Fills for retired orders are applied once.
// Fills whose order id is not tracked at all (duplicates) are ignored.
func (o *Orchestrator) OnFill(ctx context.Context, fill exchange.Fill) error {
	e, err := o.lookup(fill.Symbol)
	if err != nil {
		logger.Debugf("[orchestrator] fill for unregistered %s ignored", fill.Symbol)
		return nil
	}
	rec, ed := e.record, e.editor

	if eo, ok := rec.FindEmergencyOrder(fill.OrderID); ok {
		ed.Apply(eo.Side, fill.Execution())
		ed.RemoveEmergencyOrder(eo.OrderID)
		snap := o.publish(ctx, e)
		o.notifyFill(ctx, fill, snap, true)
		logger.Warnf("[orchestrator] emergency %s filled %s qty=%.8f px=%.8f remaining_rungs=%d",
			eo.Side, rec.Symbol(), fill.Quantity, fill.Price, rec.EmergencyOrderCount())
		return nil
	}

	if r, ok := e.takeRetired(fill.OrderID); ok {
		ed.Apply(r.side, fill.Execution())
		snap := o.publish(ctx, e)
		o.notifyFill(ctx, fill, snap, r.emergency)
		logger.Warnf("[orchestrator] late %s fill %s order=%s qty=%.8f px=%.8f -> qty=%.8f funding=%.8f",
			r.side, rec.Symbol(), fill.OrderID, fill.Quantity, fill.Price, rec.Quantity(), rec.Funding())
		if r.emergency || o.listener == nil {
			return nil
		}
		return o.listener.OnFillApplied(ctx, rec.Symbol())
	}

	var side position.Side
	switch {
	case fill.OrderID != position.NoOrder && fill.OrderID == rec.ActiveBuyOrderID():
		side = position.SideBuy
	case fill.OrderID != position.NoOrder && fill.OrderID == rec.ActiveSellOrderID():
		side = position.SideSell
	default:
		logger.Debugf("[orchestrator] untracked fill %s order=%s ignored", rec.Symbol(), fill.OrderID)
		return nil
	}

	ed.Apply(side, fill.Execution())
	ed.SetActiveOrderID(side, position.NoOrder)
	ed.SetStopLimit(side, position.Unset)
	snap := o.publish(ctx, e)
	o.notifyFill(ctx, fill, snap, false)
	logger.Infof("[orchestrator] %s filled %s qty=%.8f px=%.8f -> qty=%.8f funding=%.8f avg=%.8f",
		side, rec.Symbol(), fill.Quantity, fill.Price, rec.Quantity(), rec.Funding(), rec.AveragePrice())

	if o.listener == nil {
		return nil
	}
	return o.listener.OnFillApplied(ctx, rec.Symbol())
}

func (o *Orchestrator) notifyFill(ctx context.Context, fill exchange.Fill, snap position.Snapshot, emergency bool) {
	for _, obs := range o.observers {
		obs.FillApplied(ctx, fill, snap, emergency)
	}
}
