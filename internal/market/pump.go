package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ratchet/internal/logger"
)

// TickSink receives prices. The dispatcher and the paper venue both
// implement it.
type TickSink interface {
	OnPrice(symbol string, price float64)
}

type SinkFunc func(symbol string, price float64)

func (f SinkFunc) OnPrice(symbol string, price float64) { f(symbol, price) }

// Pump forwards a Source's ticks to its sinks in order.
type Pump struct {
	Source Source
	Sinks  []TickSink

	OnConnected    func()
	OnDisconnected func(error)

	mu      sync.Mutex
	symbols []string
}

type PumpOption func(*Pump)

func WithCallbacks(onConnect func(), onDisconnect func(error)) PumpOption {
	return func(p *Pump) {
		p.OnConnected = onConnect
		p.OnDisconnected = onDisconnect
	}
}

func NewPump(src Source, sinks []TickSink, opts ...PumpOption) *Pump {
	p := &Pump{Source: src, Sinks: sinks}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start subscribes to symbols. Calling it again with a new list replaces
// the subscription; the old consumer exits when its channel closes.
func (p *Pump) Start(ctx context.Context, symbols []string) error {
	if p.Source == nil {
		return fmt.Errorf("tick pump missing source")
	}
	if len(symbols) == 0 {
		return fmt.Errorf("tick pump requires symbols")
	}
	opts := SubscribeOptions{
		OnConnect:    p.OnConnected,
		OnDisconnect: p.OnDisconnected,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	events, err := p.Source.SubscribeTrades(ctx, symbols, opts)
	if err != nil {
		return err
	}
	p.symbols = append([]string(nil), symbols...)
	go p.consume(ctx, events)
	logger.Infof("[feed] subscribed symbols=%v", symbols)
	return nil
}

// Add subscribes again with symbol appended when it is new.
func (p *Pump) Add(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	p.mu.Lock()
	for _, s := range p.symbols {
		if s == symbol {
			p.mu.Unlock()
			return nil
		}
	}
	next := append(append([]string(nil), p.symbols...), symbol)
	p.mu.Unlock()
	return p.Start(ctx, next)
}

func (p *Pump) consume(ctx context.Context, events <-chan TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Price <= 0 {
				continue
			}
			sym := strings.ToUpper(evt.Symbol)
			for _, sink := range p.Sinks {
				sink.OnPrice(sym, evt.Price)
			}
		}
	}
}

func (p *Pump) Stats() SourceStats {
	if p.Source == nil {
		return SourceStats{}
	}
	return p.Source.Stats()
}

func (p *Pump) Close() {
	if p.Source != nil {
		if err := p.Source.Close(); err != nil {
			logger.Warnf("[feed] source close error: %v", err)
		}
	}
}
