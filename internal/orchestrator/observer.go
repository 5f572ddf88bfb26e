package orchestrator

import (
	"context"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/position"
)

// Observer is notified after each committed change. Calls run on the
// symbol's goroutine, so implementations should not block for long.
type Observer interface {
	TriggerCreated(ctx context.Context, spec TriggerSpec, snap position.Snapshot)
	PositionChanged(ctx context.Context, snap position.Snapshot)
	FillApplied(ctx context.Context, fill exchange.Fill, snap position.Snapshot, emergency bool)
}

// NopObserver can be embedded to implement only the callbacks you need.
type NopObserver struct{}

func (NopObserver) TriggerCreated(context.Context, TriggerSpec, position.Snapshot) {}
func (NopObserver) PositionChanged(context.Context, position.Snapshot)            {}
func (NopObserver) FillApplied(context.Context, exchange.Fill, position.Snapshot, bool) {
}
