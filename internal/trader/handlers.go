package trader

import (
	"encoding/json"
	"fmt"

	"ratchet/internal/gateway/exchange"
)

type TickHandler struct{}

func (h *TickHandler) Type() EventType { return EvtTick }

func (h *TickHandler) Handle(ctx *HandlerContext, payload []byte, _ string) error {
	var p TickPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid tick payload: %w", err)
	}
	if ctx.Ticks() == nil {
		return nil
	}
	return ctx.Ticks().OnTick(ctx.Context(), ctx.Symbol(), p.Price)
}

type FillHandler struct{}

func (h *FillHandler) Type() EventType { return EvtFill }

func (h *FillHandler) Handle(ctx *HandlerContext, payload []byte, _ string) error {
	var f exchange.Fill
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("invalid fill payload: %w", err)
	}
	if ctx.Fills() == nil {
		return nil
	}
	return ctx.Fills().OnFill(ctx.Context(), f)
}
