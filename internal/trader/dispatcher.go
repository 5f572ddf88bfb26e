package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/position"
)

var ErrUnknownSymbol = errors.New("trader: unknown symbol")

type Config struct {
	QueueSize     int
	SlowThreshold time.Duration
}

// Dispatcher routes events to the worker that owns their symbol.
type Dispatcher struct {
	cfg      Config
	ticks    TickProcessor
	fills    FillProcessor
	store    EventStore
	registry *HandlerRegistry
	onError  func(symbol string, t EventType, err error)

	mu      sync.RWMutex
	workers map[string]*Worker
	ctx     context.Context
	started bool
}

type DispatcherOption func(*Dispatcher)

func WithEventStore(s EventStore) DispatcherOption {
	return func(d *Dispatcher) { d.store = s }
}

func WithHandlerRegistry(r *HandlerRegistry) DispatcherOption {
	return func(d *Dispatcher) { d.registry = r }
}

// WithErrorHandler is called on the worker goroutine for each failed event.
func WithErrorHandler(fn func(symbol string, t EventType, err error)) DispatcherOption {
	return func(d *Dispatcher) { d.onError = fn }
}

func NewDispatcher(cfg Config, ticks TickProcessor, fills FillProcessor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cfg:     cfg,
		ticks:   ticks,
		fills:   fills,
		workers: make(map[string]*Worker),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = NewHandlerRegistry()
		d.registry.RegisterDefaultHandlers()
	}
	return d
}

// AddSymbol creates the symbol's worker, starting it at once when the
// dispatcher is running. Adding a known symbol is a no-op.
func (d *Dispatcher) AddSymbol(symbol string) {
	symbol = position.NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.workers[symbol]; ok {
		return
	}
	w := newWorker(symbol, d.ticks, d.fills, workerOptions{
		queueSize: d.cfg.QueueSize,
		slow:      d.cfg.SlowThreshold,
		store:     d.store,
		registry:  d.registry,
		onError:   d.onError,
	})
	d.workers[symbol] = w
	if d.started {
		w.Start(d.ctx)
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.ctx = ctx
	d.started = true
	for _, w := range d.workers {
		w.Start(ctx)
	}
	logger.Infof("dispatcher started with %d symbols", len(d.workers))
}

// Stop stops every worker and waits for in-flight events.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	workers := make([]*Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.started = false
	d.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}

func (d *Dispatcher) worker(symbol string) (*Worker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workers[position.NormalizeSymbol(symbol)]
	return w, ok
}

// SubmitTick queues a price without blocking. Unknown symbols and
// non-positive prices are dropped.
func (d *Dispatcher) SubmitTick(symbol string, price float64) {
	if price <= 0 {
		return
	}
	w, ok := d.worker(symbol)
	if !ok {
		return
	}
	evt, err := newEnvelope(EvtTick, w.symbol, TickPayload{Symbol: w.symbol, Price: price, ReceivedAt: time.Now()})
	if err != nil {
		logger.Errorf("encode tick %s: %v", symbol, err)
		return
	}
	if err := w.Offer(evt); err != nil {
		logger.Debugf("tick %s dropped: %v", symbol, err)
	}
}

// SyncTick runs a tick on the symbol's worker and returns the handler result.
func (d *Dispatcher) SyncTick(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	w, ok := d.worker(symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	evt, err := newEnvelope(EvtTick, w.symbol, TickPayload{Symbol: w.symbol, Price: price, ReceivedAt: time.Now()})
	if err != nil {
		return err
	}
	return w.SendSync(ctx, evt)
}

// SubmitFill queues a venue fill. Fills block rather than drop.
func (d *Dispatcher) SubmitFill(fill exchange.Fill) {
	w, ok := d.worker(fill.Symbol)
	if !ok {
		logger.Warnf("fill %s for unknown symbol %s", fill.OrderID, fill.Symbol)
		return
	}
	evt, err := newEnvelope(EvtFill, w.symbol, fill)
	if err != nil {
		logger.Errorf("encode fill %s: %v", fill.OrderID, err)
		return
	}
	if err := w.Send(evt); err != nil {
		logger.Errorf("fill %s not delivered: %v", fill.OrderID, err)
	}
}

func (d *Dispatcher) Symbols() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.workers))
	for s := range d.workers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Stats() []WorkerStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]WorkerStats, 0, len(d.workers))
	for _, w := range d.workers {
		out = append(out, w.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
