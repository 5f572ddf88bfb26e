package trader

import (
	"context"

	"ratchet/internal/gateway/exchange"
)

// EventHandler handles one event type.
type EventHandler interface {
	Type() EventType

	// Handle processes the payload. traceID is the envelope id.
	Handle(ctx *HandlerContext, payload []byte, traceID string) error
}

// TickProcessor consumes prices; the strategy engine implements it.
type TickProcessor interface {
	OnTick(ctx context.Context, symbol string, price float64) error
}

// FillProcessor applies fills; the orchestrator implements it.
type FillProcessor interface {
	OnFill(ctx context.Context, fill exchange.Fill) error
}

// HandlerContext gives a handler the worker's collaborators without exposing
// the worker itself.
type HandlerContext struct {
	ctx    context.Context
	worker *Worker
}

func (c *HandlerContext) Context() context.Context { return c.ctx }
func (c *HandlerContext) Symbol() string           { return c.worker.symbol }
func (c *HandlerContext) Ticks() TickProcessor     { return c.worker.ticks }
func (c *HandlerContext) Fills() FillProcessor     { return c.worker.fills }
