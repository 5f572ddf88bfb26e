package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/position"
)

// CreateTrigger arms both bounds and returns the symbol to TriggerRun.
func (o *Orchestrator) CreateTrigger(ctx context.Context, spec TriggerSpec) error {
	e, err := o.lookup(spec.Symbol)
	if err != nil {
		return err
	}
	e.editor.SetBounds(spec.Upper, spec.Lower)
	e.editor.SetRunState(position.TriggerRun)
	spec.Symbol = e.record.Symbol()

	snap := e.record.Snapshot()
	e.snap.Store(snap)
	for _, obs := range o.observers {
		obs.TriggerCreated(ctx, spec, snap)
	}
	logger.Debugf("[orchestrator] trigger %s upper=%.8f lower=%.8f", spec.Symbol, spec.Upper, spec.Lower)
	return nil
}

// SeedAveragePrice gives an unpriced position its first cost basis.
func (o *Orchestrator) SeedAveragePrice(ctx context.Context, symbol string, price float64) error {
	e, err := o.lookup(symbol)
	if err != nil {
		return err
	}
	e.editor.SeedAveragePrice(price)
	o.publish(ctx, e)
	return nil
}

func (o *Orchestrator) PlaceTrailingBuy(ctx context.Context, req OrderRequest) error {
	return o.placeTrailing(ctx, position.SideBuy, req)
}

func (o *Orchestrator) PlaceTrailingSell(ctx context.Context, req OrderRequest) error {
	return o.placeTrailing(ctx, position.SideSell, req)
}

// placeTrailing cancels the opposite side first and only adopts the new
// order id once the venue has acknowledged it. A failed cancel leaves the
// record untouched and surfaces as a retryable error. An order the venue no
// longer knows is retired and nothing new is placed until its fill arrives
// or pendingFillWindow passes.
func (o *Orchestrator) placeTrailing(ctx context.Context, side position.Side, req OrderRequest) error {
	e, err := o.lookup(req.Symbol)
	if err != nil {
		return err
	}
	rec, ed := e.record, e.editor
	symbol := rec.Symbol()
	opposite := side.Opposite()

	if e.awaitingFill(o.now()) {
		logger.Debugf("[orchestrator] trailing %s %s held: retired order fill pending", side, symbol)
		return nil
	}

	if oppID := rec.ActiveOrderID(opposite); oppID != position.NoOrder {
		err := o.venue.CancelOrder(ctx, symbol, oppID)
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			o.retireActive(ctx, e, opposite, oppID)
			return nil
		case err != nil:
			return &exchange.Error{Op: "cancel", Symbol: symbol, OrderID: oppID, Retryable: true, Err: err}
		}
		ed.SetActiveOrderID(opposite, position.NoOrder)
		ed.SetStopLimit(opposite, position.Unset)
		o.publish(ctx, e)
	}

	existing := rec.ActiveOrderID(side)
	id, err := o.venue.PlaceStop(ctx, exchange.StopRequest{
		Symbol:          symbol,
		Side:            side,
		Quantity:        req.Quantity,
		StopPrice:       req.StopPrice,
		ExistingOrderID: existing,
	})
	if err != nil {
		if existing != position.NoOrder {
			switch {
			case errors.Is(err, exchange.ErrOrderNotFound):
				o.retireActive(ctx, e, side, existing)
				return nil
			case exchange.CancelledExisting(err):
				ed.SetActiveOrderID(side, position.NoOrder)
				ed.SetStopLimit(side, position.Unset)
				o.publish(ctx, e)
				logger.Warnf("[orchestrator] %s %s stop %s cancelled but replacement failed", side, symbol, existing)
			}
		}
		return fmt.Errorf("place trailing %s %s: %w", side, symbol, err)
	}

	ed.ClearBounds()
	ed.SetStopLimit(opposite, position.Unset)
	ed.SetStopLimit(side, req.StopPrice)
	ed.SetActiveOrderID(side, id)
	if side == position.SideBuy {
		ed.SetRunState(position.BuyRun)
	} else {
		ed.SetRunState(position.SellRun)
	}
	o.publish(ctx, e)
	logger.Infof("[orchestrator] trailing %s %s qty=%.8f stop=%.8f order=%s",
		side, symbol, req.Quantity, req.StopPrice, id)
	return nil
}

// retireActive stops tracking side's active order as resting but keeps its
// id so a late fill is still applied.
func (o *Orchestrator) retireActive(ctx context.Context, e *entry, side position.Side, id string) {
	e.retire(id, side, false, o.now())
	e.editor.SetActiveOrderID(side, position.NoOrder)
	e.editor.SetStopLimit(side, position.Unset)
	o.publish(ctx, e)
	logger.Warnf("[orchestrator] %s %s order %s unknown to venue, awaiting its fill", side, e.record.Symbol(), id)
}

func (o *Orchestrator) PlaceEmergencySell(ctx context.Context, req OrderRequest) error {
	return o.placeEmergency(ctx, position.SideSell, req)
}

func (o *Orchestrator) PlaceEmergencyBuy(ctx context.Context, req OrderRequest) error {
	return o.placeEmergency(ctx, position.SideBuy, req)
}

// placeEmergency is idempotent per side and price.
func (o *Orchestrator) placeEmergency(ctx context.Context, side position.Side, req OrderRequest) error {
	e, err := o.lookup(req.Symbol)
	if err != nil {
		return err
	}
	symbol := e.record.Symbol()
	if eo, ok := e.record.HasEmergencyAt(side, req.StopPrice); ok {
		logger.Debugf("[orchestrator] emergency %s %s @%.8f already resting as %s", side, symbol, req.StopPrice, eo.OrderID)
		return nil
	}
	id, err := o.venue.PlaceStop(ctx, exchange.StopRequest{
		Symbol:    symbol,
		Side:      side,
		Quantity:  req.Quantity,
		StopPrice: req.StopPrice,
	})
	if err != nil {
		return fmt.Errorf("place emergency %s %s: %w", side, symbol, err)
	}
	e.editor.AppendEmergencyOrder(position.EmergencyOrder{
		OrderID:      id,
		Side:         side,
		PricePerUnit: req.StopPrice,
		Size:         req.Quantity,
	})
	o.publish(ctx, e)
	logger.Infof("[orchestrator] emergency %s %s qty=%.8f stop=%.8f order=%s", side, symbol, req.Quantity, req.StopPrice, id)
	return nil
}

// ClearEmergencyOrders cancels every resting rung. Rungs whose cancel failed
// stay tracked and the failures are joined into the returned error. Rungs
// the venue no longer knows are retired so their fills still apply.
func (o *Orchestrator) ClearEmergencyOrders(ctx context.Context, symbol string) error {
	e, err := o.lookup(symbol)
	if err != nil {
		return err
	}
	rungs := e.record.EmergencyOrders()
	if len(rungs) == 0 {
		return nil
	}
	var errs []error
	for _, eo := range rungs {
		err := o.venue.CancelOrder(ctx, e.record.Symbol(), eo.OrderID)
		switch {
		case errors.Is(err, exchange.ErrOrderNotFound):
			e.retire(eo.OrderID, eo.Side, true, o.now())
		case err != nil:
			errs = append(errs, &exchange.Error{Op: "cancel", Symbol: e.record.Symbol(), OrderID: eo.OrderID, Retryable: true, Err: err})
			continue
		}
		e.editor.RemoveEmergencyOrder(eo.OrderID)
	}
	o.publish(ctx, e)
	if len(errs) > 0 {
		logger.Warnf("[orchestrator] %s: %d of %d emergency cancels failed", e.record.Symbol(), len(errs), len(rungs))
	}
	return errors.Join(errs...)
}

// Reseed overwrites the live record from a stored snapshot.
func (o *Orchestrator) Reseed(ctx context.Context, snap position.Snapshot) error {
	e, err := o.lookup(snap.Symbol)
	if err != nil {
		return err
	}
	if err := e.editor.Restore(snap); err != nil {
		return err
	}
	e.retired = nil
	o.publish(ctx, e)
	return nil
}
