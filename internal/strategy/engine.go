// Package strategy decides, tick by tick, where each symbol's trailing stop
// belongs and how large it may be, and keeps the emergency ladder in step
// with the position after every fill.
package strategy

import (
	"context"
	"math"

	"ratchet/internal/logger"
	"ratchet/internal/orchestrator"
	"ratchet/internal/position"
)

// Orchestrator is the part of the position orchestrator the engine drives.
type Orchestrator interface {
	Position(symbol string) (*position.Record, bool)
	SeedAveragePrice(ctx context.Context, symbol string, price float64) error
	CreateTrigger(ctx context.Context, spec orchestrator.TriggerSpec) error
	PlaceTrailingBuy(ctx context.Context, req orchestrator.OrderRequest) error
	PlaceTrailingSell(ctx context.Context, req orchestrator.OrderRequest) error
	PlaceEmergencySell(ctx context.Context, req orchestrator.OrderRequest) error
	PlaceEmergencyBuy(ctx context.Context, req orchestrator.OrderRequest) error
	ClearEmergencyOrders(ctx context.Context, symbol string) error
}

type Engine struct {
	cfg    Config
	orch   Orchestrator
	smooth *smoothers
}

func NewEngine(cfg Config, orch Orchestrator) *Engine {
	final := cfg.withDefaults()
	return &Engine{
		cfg:    final,
		orch:   orch,
		smooth: newSmoothers(final.MovingAverageWindow),
	}
}

func (e *Engine) Config() Config { return e.cfg }

// OnTick evaluates one price for symbol. Unknown symbols and non-positive
// prices are ignored. A returned error means an order operation failed; a
// skipped action is not an error.
func (e *Engine) OnTick(ctx context.Context, symbol string, price float64) error {
	if price <= 0 || !finite(price) {
		return nil
	}
	rec, ok := e.orch.Position(symbol)
	if !ok {
		logger.Debugf("[strategy] tick for unknown %s ignored", symbol)
		return nil
	}
	symbol = rec.Symbol()
	price = e.smooth.apply(symbol, price)

	if rec.AveragePrice() == 0 {
		if err := e.orch.SeedAveragePrice(ctx, symbol, price); err != nil {
			return err
		}
		logger.Infof("[strategy] %s seeded average price %.8f", symbol, price)
		return e.Rearm(ctx, symbol)
	}

	offset := rec.TrailingOffset()
	switch rec.RunState() {
	case position.BuyRun:
		candidate := price + offset
		if limit := rec.BuyOrderLimit(); limit != position.Unset && decimalGT(candidate, limit) {
			return nil
		}
		return e.tryBuy(ctx, rec, candidate)
	case position.SellRun:
		candidate := price - offset
		if limit := rec.SellOrderLimit(); limit != position.Unset && decimalLT(candidate, limit) {
			return nil
		}
		return e.trySell(ctx, rec, candidate)
	default:
		upper, lower := rec.UpperBound(), rec.LowerBound()
		if upper != position.Unset && price >= upper {
			// first arm never sells below cost
			return e.trySell(ctx, rec, math.Max(price-offset, rec.AveragePrice()))
		}
		if lower != position.Unset && price <= lower {
			return e.tryBuy(ctx, rec, math.Min(price+offset, rec.AveragePrice()))
		}
	}
	return nil
}

// OnFillApplied re-arms after a trailing fill.
func (e *Engine) OnFillApplied(ctx context.Context, symbol string) error {
	return e.Rearm(ctx, symbol)
}

func (e *Engine) tryBuy(ctx context.Context, rec *position.Record, stop float64) error {
	size, ok := e.Evaluate(rec, position.SideBuy, stop)
	if !ok {
		return nil
	}
	return e.orch.PlaceTrailingBuy(ctx, orchestrator.OrderRequest{Symbol: rec.Symbol(), Quantity: size, StopPrice: stop})
}

func (e *Engine) trySell(ctx context.Context, rec *position.Record, stop float64) error {
	size, ok := e.Evaluate(rec, position.SideSell, stop)
	if !ok {
		return nil
	}
	return e.orch.PlaceTrailingSell(ctx, orchestrator.OrderRequest{Symbol: rec.Symbol(), Quantity: size, StopPrice: stop})
}
