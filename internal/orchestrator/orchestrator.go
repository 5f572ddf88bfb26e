// Package orchestrator owns the live position records and is the only caller
// of their editors. Every operation on a symbol must come from the goroutine
// that owns that symbol; the registry itself is safe for concurrent use.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/position"
)

var (
	ErrUnknownSymbol     = errors.New("orchestrator: unknown symbol")
	ErrAlreadyRegistered = errors.New("orchestrator: symbol already registered")
)

// TriggerSpec arms the bounds that start the next run.
type TriggerSpec struct {
	Symbol string
	Upper  float64
	Lower  float64
}

// OrderRequest is a stop at StopPrice for Quantity. The side comes from the
// operation it is passed to.
type OrderRequest struct {
	Symbol    string
	Quantity  float64
	StopPrice float64
}

// FillListener is told after a trailing order fill has been applied.
type FillListener interface {
	OnFillApplied(ctx context.Context, symbol string) error
}

type entry struct {
	record *position.Record
	editor *position.Editor
	snap   atomic.Value

	retired map[string]retiredOrder
}

type Orchestrator struct {
	venue exchange.Venue

	mu      sync.RWMutex
	entries map[string]*entry

	listener  FillListener
	router    func(exchange.Fill)
	observers []Observer

	now func() time.Time
}

type Option func(*Orchestrator)

// WithFillRouter sends venue fills to route instead of applying them on the
// venue's goroutine. The router is expected to hand them back through OnFill
// on the symbol's own goroutine.
func WithFillRouter(route func(exchange.Fill)) Option {
	return func(o *Orchestrator) { o.router = route }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

func New(venue exchange.Venue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		venue:   venue,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// SetFillListener installs the component re-armed after trailing fills.
func (o *Orchestrator) SetFillListener(l FillListener) { o.listener = l }

// SetFillRouter is WithFillRouter for graphs where the router is built after
// the orchestrator. Call it before the first RegisterPosition.
func (o *Orchestrator) SetFillRouter(route func(exchange.Fill)) { o.router = route }

func (o *Orchestrator) AddObserver(obs Observer) {
	if obs != nil {
		o.observers = append(o.observers, obs)
	}
}

// RegisterPosition takes the record's editor and subscribes to its fills.
func (o *Orchestrator) RegisterPosition(rec *position.Record) error {
	if rec == nil {
		return position.ErrEmptySymbol
	}
	symbol := rec.Symbol()
	o.mu.Lock()
	if _, ok := o.entries[symbol]; ok {
		o.mu.Unlock()
		return ErrAlreadyRegistered
	}
	ed, err := rec.Editor()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	e := &entry{record: rec, editor: ed}
	e.snap.Store(rec.Snapshot())
	o.entries[symbol] = e
	o.mu.Unlock()

	handler := func(f exchange.Fill) {
		if o.router != nil {
			o.router(f)
			return
		}
		if err := o.OnFill(context.Background(), f); err != nil {
			logger.Errorf("[orchestrator] fill %s %s: %v", f.Symbol, f.OrderID, err)
		}
	}
	if err := o.venue.SubscribeFills(symbol, handler); err != nil {
		o.mu.Lock()
		delete(o.entries, symbol)
		o.mu.Unlock()
		return err
	}
	logger.Infof("[orchestrator] registered %s qty=%.8f funding=%.8f state=%s",
		symbol, rec.Quantity(), rec.Funding(), rec.RunState())
	return nil
}

func (o *Orchestrator) lookup(symbol string) (*entry, error) {
	o.mu.RLock()
	e, ok := o.entries[position.NormalizeSymbol(symbol)]
	o.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSymbol
	}
	return e, nil
}

// Position returns the live record. Only the owning goroutine may read it
// while events are flowing; everyone else should use Snapshot.
func (o *Orchestrator) Position(symbol string) (*position.Record, bool) {
	e, err := o.lookup(symbol)
	if err != nil {
		return nil, false
	}
	return e.record, true
}

// Snapshot returns the state published after the symbol's last operation.
func (o *Orchestrator) Snapshot(symbol string) (position.Snapshot, bool) {
	e, err := o.lookup(symbol)
	if err != nil {
		return position.Snapshot{}, false
	}
	snap, _ := e.snap.Load().(position.Snapshot)
	return snap, true
}

func (o *Orchestrator) Snapshots() []position.Snapshot {
	symbols := o.Symbols()
	out := make([]position.Snapshot, 0, len(symbols))
	for _, sym := range symbols {
		if snap, ok := o.Snapshot(sym); ok {
			out = append(out, snap)
		}
	}
	return out
}

func (o *Orchestrator) Symbols() []string {
	o.mu.RLock()
	out := make([]string, 0, len(o.entries))
	for sym := range o.entries {
		out = append(out, sym)
	}
	o.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (o *Orchestrator) publish(ctx context.Context, e *entry) position.Snapshot {
	snap := e.record.Snapshot()
	e.snap.Store(snap)
	for _, obs := range o.observers {
		obs.PositionChanged(ctx, snap)
	}
	return snap
}
