package exchange

import (
	"context"
	"errors"
	"time"

	"ratchet/internal/logger"
	"ratchet/internal/pkg/circuit"

	"golang.org/x/time/rate"
)

type GuardConfig struct {
	RatePerSec       float64
	Burst            int
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

func (c GuardConfig) withDefaults() GuardConfig {
	out := c
	if out.RatePerSec <= 0 {
		out.RatePerSec = 10
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerTimeout <= 0 {
		out.BreakerTimeout = time.Minute
	}
	return out
}

// Guarded wraps a venue with a request rate limit and a circuit breaker.
// ErrOrderNotFound on cancel or move is an expected answer and does not
// count as a failure.
type Guarded struct {
	inner   Venue
	limiter *rate.Limiter
	breaker *circuit.CircuitBreaker
}

func NewGuarded(inner Venue, cfg GuardConfig) *Guarded {
	final := cfg.withDefaults()
	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(final.RatePerSec), final.Burst),
		breaker: circuit.NewCircuitBreaker("venue."+inner.Name(), final.BreakerThreshold, final.BreakerTimeout),
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Breaker() *circuit.CircuitBreaker { return g.breaker }

func (g *Guarded) PlaceStop(ctx context.Context, req StopRequest) (string, error) {
	if err := g.admit(ctx, "place", req.Symbol, req.ExistingOrderID); err != nil {
		return "", err
	}
	id, err := g.inner.PlaceStop(ctx, req)
	if errors.Is(err, ErrOrderNotFound) {
		g.record(nil)
		return id, err
	}
	g.record(err)
	return id, err
}

func (g *Guarded) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := g.admit(ctx, "cancel", symbol, orderID); err != nil {
		return err
	}
	err := g.inner.CancelOrder(ctx, symbol, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		g.record(nil)
		return err
	}
	g.record(err)
	return err
}

func (g *Guarded) SubscribeFills(symbol string, handler FillHandler) error {
	return g.inner.SubscribeFills(symbol, handler)
}

func (g *Guarded) admit(ctx context.Context, op, symbol, orderID string) error {
	if !g.breaker.Allow() {
		logger.Warnf("[venue] %s breaker open, rejecting %s %s", g.inner.Name(), op, symbol)
		return &Error{Op: op, Symbol: symbol, OrderID: orderID, Retryable: true, Err: ErrCircuitOpen}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return &Error{Op: op, Symbol: symbol, OrderID: orderID, Retryable: true, Err: err}
	}
	return nil
}

func (g *Guarded) record(err error) {
	if err != nil {
		g.breaker.RecordFailure()
		return
	}
	g.breaker.RecordSuccess()
}
