// Package paper is an in-process venue that fills stop orders against the
// prices it is fed.
package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/position"

	"github.com/google/uuid"
)

// Order is a resting paper stop. TriggerAbove is fixed at placement: the
// order fires once price reaches the stop from the side it was armed on.
type Order struct {
	ID           string
	Symbol       string
	Side         position.Side
	Quantity     float64
	StopPrice    float64
	TriggerAbove bool
	seq          uint64
}

type Venue struct {
	mu       sync.Mutex
	orders   map[string]*Order
	last     map[string]float64
	handlers map[string]exchange.FillHandler
	seq      uint64

	commissionRate float64
	now            func() time.Time
}

type Option func(*Venue)

// WithCommissionRate charges rate*notional on every fill.
func WithCommissionRate(rate float64) Option {
	return func(v *Venue) {
		if rate > 0 {
			v.commissionRate = rate
		}
	}
}

func New(opts ...Option) *Venue {
	v := &Venue{
		orders:   make(map[string]*Order),
		last:     make(map[string]float64),
		handlers: make(map[string]exchange.FillHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func (v *Venue) Name() string { return "paper" }

func (v *Venue) PlaceStop(_ context.Context, req exchange.StopRequest) (string, error) {
	symbol := position.NormalizeSymbol(req.Symbol)
	if symbol == "" || req.Quantity <= 0 || req.StopPrice <= 0 {
		return "", &exchange.Error{
			Op:     "place",
			Symbol: symbol,
			Err:    fmt.Errorf("invalid stop qty=%.8f stop=%.8f", req.Quantity, req.StopPrice),
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	above := req.Side == position.SideBuy
	if last, ok := v.last[symbol]; ok && last > 0 {
		above = req.StopPrice >= last
	}
	if req.ExistingOrderID != "" {
		existing, ok := v.orders[req.ExistingOrderID]
		if !ok || existing.Symbol != symbol {
			return "", &exchange.Error{Op: "move", Symbol: symbol, OrderID: req.ExistingOrderID, Err: exchange.ErrOrderNotFound}
		}
		existing.Side = req.Side
		existing.Quantity = req.Quantity
		existing.StopPrice = req.StopPrice
		existing.TriggerAbove = above
		return existing.ID, nil
	}
	v.seq++
	o := &Order{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		StopPrice:    req.StopPrice,
		TriggerAbove: above,
		seq:          v.seq,
	}
	v.orders[o.ID] = o
	return o.ID, nil
}

func (v *Venue) CancelOrder(_ context.Context, symbol, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[orderID]; !ok {
		return &exchange.Error{Op: "cancel", Symbol: symbol, OrderID: orderID, Err: exchange.ErrOrderNotFound}
	}
	delete(v.orders, orderID)
	return nil
}

func (v *Venue) SubscribeFills(symbol string, handler exchange.FillHandler) error {
	symbol = position.NormalizeSymbol(symbol)
	if symbol == "" || handler == nil {
		return fmt.Errorf("paper: symbol and handler are required")
	}
	v.mu.Lock()
	v.handlers[symbol] = handler
	v.mu.Unlock()
	return nil
}

// OnPrice records the latest price and fills every stop it crosses. Fills are
// priced at the stop and delivered after the venue lock is released.
func (v *Venue) OnPrice(symbol string, price float64) []exchange.Fill {
	symbol = position.NormalizeSymbol(symbol)
	if symbol == "" || price <= 0 {
		return nil
	}
	v.mu.Lock()
	v.last[symbol] = price
	var hit []*Order
	for _, o := range v.orders {
		if o.Symbol != symbol {
			continue
		}
		if (o.TriggerAbove && price >= o.StopPrice) || (!o.TriggerAbove && price <= o.StopPrice) {
			hit = append(hit, o)
		}
	}
	sort.Slice(hit, func(i, j int) bool { return hit[i].seq < hit[j].seq })
	fills := make([]exchange.Fill, 0, len(hit))
	for _, o := range hit {
		delete(v.orders, o.ID)
		notional := o.Quantity * o.StopPrice
		fills = append(fills, exchange.Fill{
			OrderID:    o.ID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Quantity:   o.Quantity,
			Price:      o.StopPrice,
			Cost:       notional,
			Commission: notional * v.commissionRate,
			FilledAt:   v.now(),
		})
	}
	handler := v.handlers[symbol]
	v.mu.Unlock()

	for _, f := range fills {
		logger.Debugf("[paper] fill %s %s %s qty=%.8f px=%.8f", f.Symbol, strings.ToUpper(string(f.Side)), f.OrderID, f.Quantity, f.Price)
		if handler != nil {
			handler(f)
		}
	}
	return fills
}

// Orders lists resting orders for symbol in placement order.
func (v *Venue) Orders(symbol string) []Order {
	symbol = position.NormalizeSymbol(symbol)
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Order, 0, len(v.orders))
	for _, o := range v.orders {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (v *Venue) LastPrice(symbol string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.last[position.NormalizeSymbol(symbol)]
	return p, ok
}
