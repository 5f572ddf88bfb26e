package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/orchestrator"
	"ratchet/internal/position"

	"golang.org/x/time/rate"
)

// Alerter turns protective fills and processing failures into chat
// messages. Messages are queued and sent by Run so observer callbacks
// never wait on the network. When the queue is full the message is dropped.
type Alerter struct {
	orchestrator.NopObserver

	sink    TextNotifier
	limiter *rate.Limiter
	queue   chan string
	now     func() time.Time

	mu      sync.Mutex
	dropped int
}

var _ orchestrator.Observer = (*Alerter)(nil)

type AlerterOption func(*Alerter)

// WithRate caps delivery at perMinute messages with the given burst.
func WithRate(perMinute float64, burst int) AlerterOption {
	return func(a *Alerter) {
		if perMinute > 0 && burst > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
		}
	}
}

func WithQueueSize(n int) AlerterOption {
	return func(a *Alerter) {
		if n > 0 {
			a.queue = make(chan string, n)
		}
	}
}

func NewAlerter(sink TextNotifier, opts ...AlerterOption) *Alerter {
	if sink == nil {
		sink = Nop{}
	}
	a := &Alerter{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(20.0/60), 5),
		queue:   make(chan string, 64),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FillApplied reports emergency fills. Trailing fills are routine.
func (a *Alerter) FillApplied(_ context.Context, fill exchange.Fill, snap position.Snapshot, emergency bool) {
	if !emergency {
		return
	}
	msg := StructuredMessage{
		Icon:  "🛑",
		Title: "Emergency stop filled " + snap.Symbol,
		Sections: []MessageSection{
			{Title: "Fill", Lines: []string{
				fmt.Sprintf("order %s %s", fill.OrderID, fill.Side),
				fmt.Sprintf("qty %.8g @ %.8g", fill.Quantity, fill.Price),
				fmt.Sprintf("commission %.8g", fill.Commission),
			}},
			{Title: "Position", Lines: []string{
				fmt.Sprintf("state %s", snap.RunState),
				fmt.Sprintf("quantity %.8g funding %.8g", snap.Quantity, snap.Funding),
				fmt.Sprintf("average %.8g", snap.AveragePrice),
				fmt.Sprintf("rungs left %d", len(snap.EmergencyOrders)),
			}},
		},
		Timestamp: a.timestamp(fill.FilledAt),
	}
	a.enqueue(msg.RenderMarkdown())
}

// EventFailed reports an event the symbol worker could not process.
func (a *Alerter) EventFailed(symbol, kind string, err error) {
	if err == nil {
		return
	}
	msg := StructuredMessage{
		Icon:      "⚠️",
		Title:     fmt.Sprintf("%s %s failed", strings.ToUpper(symbol), strings.ToLower(kind)),
		Sections:  []MessageSection{{Title: "Error", Lines: []string{err.Error()}}},
		Timestamp: a.now(),
	}
	a.enqueue(msg.RenderMarkdown())
}

func (a *Alerter) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Run delivers queued messages until ctx ends.
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-a.queue:
			if err := a.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := a.sink.SendText(ctx, text); err != nil {
				logger.Warnf("[notifier] send alert: %v", err)
			}
		}
	}
}

func (a *Alerter) enqueue(text string) {
	select {
	case a.queue <- text:
	default:
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		logger.Warnf("[notifier] alert queue full, dropping message")
	}
}

func (a *Alerter) timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return a.now()
	}
	return t
}
