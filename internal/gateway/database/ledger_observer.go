package database

import (
	"context"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/orchestrator"
	"ratchet/internal/position"
)

// LedgerObserver writes each applied fill to the ledger.
type LedgerObserver struct {
	orchestrator.NopObserver
	store *LedgerStore
}

func NewLedgerObserver(store *LedgerStore) *LedgerObserver {
	return &LedgerObserver{store: store}
}

func (o *LedgerObserver) FillApplied(ctx context.Context, fill exchange.Fill, snap position.Snapshot, emergency bool) {
	if o == nil || o.store == nil {
		return
	}
	ts := fill.FilledAt.UnixMilli()
	if fill.FilledAt.IsZero() {
		ts = 0
	}
	_, err := o.store.Insert(ctx, LedgerEntry{
		Timestamp:         ts,
		Symbol:            fill.Symbol,
		OrderID:           fill.OrderID,
		Side:              string(fill.Side),
		Quantity:          fill.Quantity,
		Price:             fill.Price,
		Cost:              fill.Cost,
		Commission:        fill.Commission,
		Emergency:         emergency,
		RunState:          snap.RunState,
		QuantityAfter:     snap.Quantity,
		FundingAfter:      snap.Funding,
		AveragePriceAfter: snap.AveragePrice,
	})
	if err != nil {
		logger.Errorf("ledger insert %s %s: %v", fill.Symbol, fill.OrderID, err)
	}
}
