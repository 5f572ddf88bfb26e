package strategy

import (
	"context"
	"errors"
	"math"

	"ratchet/internal/logger"
	"ratchet/internal/orchestrator"
	"ratchet/internal/position"
)

// LowestMaintainablePrice is the price at which a long funded with negative
// funds hits the maintenance margin.
func LowestMaintainablePrice(funds, marginPct, qty float64) float64 {
	return funds / ((marginPct - 1) * qty)
}

// HighestMaintainablePrice is the price at which a short hits the
// maintenance margin.
func HighestMaintainablePrice(funds, marginPct, qty float64) float64 {
	return funds * (marginPct - 1) / qty
}

// Rearm recomputes the bounds around the average price, rebuilds the
// emergency ladder for leveraged positions and returns the symbol to
// TriggerRun.
func (e *Engine) Rearm(ctx context.Context, symbol string) error {
	rec, ok := e.orch.Position(symbol)
	if !ok {
		return orchestrator.ErrUnknownSymbol
	}
	symbol = rec.Symbol()
	avg, offset := rec.AveragePrice(), rec.TrailingOffset()
	upper, lower := avg+offset, avg-offset

	var errs []error
	switch {
	case rec.Quantity() < 0:
		errs = append(errs, e.ladder(ctx, rec, position.SideBuy))
	case rec.Funding() < 0:
		errs = append(errs, e.ladder(ctx, rec, position.SideSell))
	case rec.HasEmergencyOrders():
		errs = append(errs, e.orch.ClearEmergencyOrders(ctx, symbol))
	}
	errs = append(errs, e.orch.CreateTrigger(ctx, orchestrator.TriggerSpec{Symbol: symbol, Upper: upper, Lower: lower}))
	return errors.Join(errs...)
}

// ladder spreads the position over SafetyBands protective stops, each priced
// at the maintenance boundary of what remains after the rungs before it.
func (e *Engine) ladder(ctx context.Context, rec *position.Record, side position.Side) error {
	symbol := rec.Symbol()
	var errs []error
	if err := e.orch.ClearEmergencyOrders(ctx, symbol); err != nil {
		errs = append(errs, err)
	}

	mm := e.cfg.MaintenanceMargin
	bands := rec.SafetyBands()
	protection := rec.MarginProtection()
	batch := math.Abs(rec.Quantity()) / float64(bands)
	funds, remaining := rec.Funding(), rec.Quantity()

	placed := 0
	for i := 0; i < bands; i++ {
		var price float64
		if side == position.SideSell {
			if remaining <= 0 {
				break
			}
			price = LowestMaintainablePrice(funds, mm, remaining) + protection
		} else {
			if remaining >= 0 {
				break
			}
			price = HighestMaintainablePrice(funds, mm, remaining) - protection
		}
		if price <= 0 || !finite(price) {
			logger.Warnf("[strategy] %s %s ladder stopped at rung %d: price %.8f", symbol, side, i, price)
			break
		}
		req := orchestrator.OrderRequest{Symbol: symbol, Quantity: batch, StopPrice: price}
		var err error
		if side == position.SideSell {
			err = e.orch.PlaceEmergencySell(ctx, req)
			funds += batch * price
			remaining -= batch
		} else {
			err = e.orch.PlaceEmergencyBuy(ctx, req)
			funds -= batch * price
			remaining += batch
		}
		if err != nil {
			errs = append(errs, err)
			break
		}
		placed++
	}
	logger.Infof("[strategy] %s %s ladder: %d/%d rungs batch=%.8f", symbol, side, placed, bands, batch)
	return errors.Join(errs...)
}
