package app

import (
	"context"
	"fmt"

	"ratchet/internal/book"
	"ratchet/internal/logger"
	"ratchet/internal/position"
)

// restorePositions registers every enabled book entry. A stored snapshot
// for the symbol carries its capital and run state across restarts; the
// book's tuning parameters always win over the stored ones.
func (a *App) restorePositions(ctx context.Context, snap book.Snapshot) error {
	for _, sym := range snap.Symbols() {
		if err := a.addPosition(ctx, snap.Entries[sym]); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) addPosition(ctx context.Context, entry book.Entry) error {
	rec, err := position.New(entry.Params())
	if err != nil {
		return fmt.Errorf("position %s: %w", entry.Symbol, err)
	}
	if err := a.orch.RegisterPosition(rec); err != nil {
		return fmt.Errorf("register %s: %w", entry.Symbol, err)
	}
	if err := a.resume(ctx, rec.Symbol(), entry); err != nil {
		return err
	}
	a.dispatcher.AddSymbol(rec.Symbol())
	return nil
}

func (a *App) resume(ctx context.Context, symbol string, entry book.Entry) error {
	stored, ok, err := a.store.LoadSnapshot(ctx, symbol)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", symbol, err)
	}
	if !ok {
		return nil
	}
	stored = mergeBookParams(stored, entry)
	if a.paper != nil {
		stored = withoutVenueState(stored)
	}
	if err := a.orch.Reseed(ctx, stored); err != nil {
		return fmt.Errorf("reseed %s: %w", symbol, err)
	}
	logger.Infof("[recovery] %s resumed state=%s qty=%.8f funding=%.8f avg=%.8f",
		stored.Symbol, stored.RunState, stored.Quantity, stored.Funding, stored.AveragePrice)

	// Paper orders die with the process, so the position is armed again
	// around its restored average price.
	if a.paper != nil && stored.AveragePrice > 0 {
		if err := a.engine.Rearm(ctx, symbol); err != nil {
			logger.Warnf("[recovery] rearm %s: %v", symbol, err)
		}
	}
	return nil
}

func mergeBookParams(s position.Snapshot, entry book.Entry) position.Snapshot {
	s.TrailingOffset = entry.TrailingOffset
	s.TradeFraction = entry.TradeFraction
	s.MarginProtection = entry.MarginProtection
	s.SafetyBands = entry.SafetyBands
	return s
}

// withoutVenueState drops order ids and the run state that depended on
// them, keeping the accounting.
func withoutVenueState(s position.Snapshot) position.Snapshot {
	s.RunState = position.TriggerRun.String()
	s.ActiveBuyOrderID = position.NoOrder
	s.ActiveSellOrderID = position.NoOrder
	s.BuyOrderLimit = position.Unset
	s.SellOrderLimit = position.Unset
	s.UpperBound = position.Unset
	s.LowerBound = position.Unset
	s.EmergencyOrders = nil
	return s
}

// onBookChange registers entries enabled since the previous load. Removing
// or disabling an entry does not stop a live position; that takes a
// restart.
func (a *App) onBookChange(prev, next book.Snapshot) {
	ctx := a.context()
	for _, entry := range next.Added(prev) {
		if _, ok := a.orch.Position(entry.Symbol); ok {
			continue
		}
		if err := a.addPosition(ctx, entry); err != nil {
			logger.Errorf("[book] add %s: %v", entry.Symbol, err)
			continue
		}
		logger.Infof("[book] %s added", entry.Symbol)
		if a.pump != nil {
			if err := a.pump.Add(ctx, entry.Symbol); err != nil {
				logger.Warnf("[book] subscribe %s: %v", entry.Symbol, err)
			}
		}
	}
	for sym, old := range prev.Entries {
		cur, ok := next.Entries[sym]
		if !old.Disabled && (!ok || cur.Disabled) {
			logger.Warnf("[book] %s removed from book; it keeps running until restart", sym)
		}
	}
}
