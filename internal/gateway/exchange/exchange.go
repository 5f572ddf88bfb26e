package exchange

import (
	"context"
	"time"

	"ratchet/internal/position"
)

// Venue places and cancels stop orders and reports fills.
type Venue interface {
	Name() string

	// PlaceStop creates a stop order, or moves ExistingOrderID when set, and
	// returns the acknowledged order id.
	PlaceStop(ctx context.Context, req StopRequest) (string, error)

	CancelOrder(ctx context.Context, symbol, orderID string) error

	// SubscribeFills registers handler for fills on symbol. A later call for
	// the same symbol replaces the handler.
	SubscribeFills(symbol string, handler FillHandler) error
}

type FillHandler func(Fill)

type StopRequest struct {
	Symbol          string
	Side            position.Side
	Quantity        float64
	StopPrice       float64
	ExistingOrderID string
}

type Fill struct {
	OrderID    string        `json:"order_id"`
	Symbol     string        `json:"symbol"`
	Side       position.Side `json:"side"`
	Quantity   float64       `json:"quantity"`
	Price      float64       `json:"price"`
	Cost       float64       `json:"cost"`
	Commission float64       `json:"commission"`
	FilledAt   time.Time     `json:"filled_at"`
}

// Execution converts the fill into the cost-basis input.
func (f Fill) Execution() position.Execution {
	return position.Execution{
		Quantity:   f.Quantity,
		Price:      f.Price,
		Cost:       f.Cost,
		Commission: f.Commission,
	}
}
