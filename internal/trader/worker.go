package trader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"ratchet/internal/logger"
)

var ErrWorkerStopped = errors.New("trader: worker stopped")

const handlerTimeout = 30 * time.Second

// Worker is the single goroutine that owns one symbol. Events are handled
// strictly in arrival order, except that a tick arriving on a full queue
// replaces any tick already waiting for space and a tick accepted into the
// queue discards the parked one.
type Worker struct {
	symbol   string
	ticks    TickProcessor
	fills    FillProcessor
	store    EventStore
	registry *HandlerRegistry
	onError  func(symbol string, t EventType, err error)
	slow     time.Duration
	log      *logger.Scoped

	msgCh  chan EventEnvelope
	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	pendingMu sync.Mutex
	pending   *EventEnvelope

	processed atomic.Int64
	coalesced atomic.Int64
	failed    atomic.Int64
}

// WorkerStats is a point-in-time view of a worker's counters.
type WorkerStats struct {
	Symbol    string `json:"symbol"`
	Queued    int    `json:"queued"`
	Processed int64  `json:"processed"`
	Coalesced int64  `json:"coalesced"`
	Failed    int64  `json:"failed"`
}

type workerOptions struct {
	queueSize int
	slow      time.Duration
	store     EventStore
	registry  *HandlerRegistry
	onError   func(symbol string, t EventType, err error)
}

func newWorker(symbol string, ticks TickProcessor, fills FillProcessor, opts workerOptions) *Worker {
	if opts.queueSize <= 0 {
		opts.queueSize = 64
	}
	if opts.slow <= 0 {
		opts.slow = 100 * time.Millisecond
	}
	if opts.registry == nil {
		opts.registry = NewHandlerRegistry()
		opts.registry.RegisterDefaultHandlers()
	}
	return &Worker{
		symbol:   symbol,
		ticks:    ticks,
		fills:    fills,
		store:    opts.store,
		registry: opts.registry,
		onError:  opts.onError,
		slow:     opts.slow,
		log:      logger.With("symbol", symbol),
		msgCh:    make(chan EventEnvelope, opts.queueSize),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.runLoop(ctx)
}

func (w *Worker) Stop() {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Send enqueues evt and blocks while the queue is full.
func (w *Worker) Send(evt EventEnvelope) error {
	select {
	case <-w.stopCh:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.msgCh <- evt:
		return nil
	case <-w.stopCh:
		return ErrWorkerStopped
	}
}

// Offer enqueues a tick without blocking. On a full queue the tick is parked
// as the latest pending price and handled once the queue drains. A parked
// tick is older than any tick Offer later queues, so it is dropped then.
func (w *Worker) Offer(evt EventEnvelope) error {
	select {
	case <-w.stopCh:
		return ErrWorkerStopped
	default:
	}
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	select {
	case w.msgCh <- evt:
		if w.pending != nil {
			w.pending = nil
			w.coalesced.Add(1)
		}
		return nil
	default:
	}
	if w.pending != nil {
		w.coalesced.Add(1)
	}
	w.pending = &evt
	// the loop may have drained the queue before the tick was parked
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// SendSync enqueues evt and waits for its handler result.
func (w *Worker) SendSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}
	if err := w.Send(evt); err != nil {
		return err
	}
	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopCh:
		return fmt.Errorf("%w during sync call", ErrWorkerStopped)
	}
}

func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Symbol:    w.symbol,
		Queued:    len(w.msgCh),
		Processed: w.processed.Load(),
		Coalesced: w.coalesced.Load(),
		Failed:    w.failed.Load(),
	}
}

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	w.log.Debugf("worker started")
	for {
		select {
		case evt := <-w.msgCh:
			w.handleEvent(ctx, evt)
			w.drainPending(ctx)
		case <-w.wakeCh:
			w.drainPending(ctx)
		case <-w.stopCh:
			w.log.Debugf("worker stopping")
			return
		case <-ctx.Done():
			w.log.Debugf("worker context done")
			return
		}
	}
}

func (w *Worker) drainPending(ctx context.Context) {
	if len(w.msgCh) > 0 {
		return
	}
	w.pendingMu.Lock()
	evt := w.pending
	w.pending = nil
	w.pendingMu.Unlock()
	if evt != nil {
		w.handleEvent(ctx, *evt)
	}
}

// handleEvent never lets a handler panic escape the loop, persists facts
// before applying them and answers ReplyCh.
func (w *Worker) handleEvent(ctx context.Context, evt EventEnvelope) {
	var err error
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("panic handling %s: %v", evt.Type, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
		}
		w.processed.Add(1)
		if err != nil {
			w.failed.Add(1)
			if w.onError != nil {
				w.onError(w.symbol, evt.Type, err)
			}
		}
		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}
		if dur := time.Since(start); dur > w.slow {
			w.log.Warnf("slow event %s took %v", evt.Type, dur)
		}
	}()

	if w.store != nil && shouldPersistEvent(evt.Type) {
		if perr := w.store.Append(evt); perr != nil {
			w.log.Errorf("persist %s %s: %v", evt.Type, evt.ID, perr)
		}
	}

	handler, ok := w.registry.Get(evt.Type)
	if !ok {
		w.log.Warnf("no handler for event type %s", evt.Type)
		return
	}
	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	err = handler.Handle(&HandlerContext{ctx: hctx, worker: w}, evt.Payload, evt.ID)
	if err != nil {
		w.log.Errorf("handle %s: %v", evt.Type, err)
	}
}
