package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ratchet/internal/book"
	"ratchet/internal/config"
	"ratchet/internal/gateway/binance"
	"ratchet/internal/gateway/database"
	"ratchet/internal/gateway/exchange"
	"ratchet/internal/gateway/notifier"
	"ratchet/internal/gateway/paper"
	"ratchet/internal/logger"
	"ratchet/internal/market"
	"ratchet/internal/orchestrator"
	"ratchet/internal/store"
	"ratchet/internal/strategy"
	"ratchet/internal/trader"
	statushttp "ratchet/internal/transport/http/status"

	"golang.org/x/sync/errgroup"
)

// App owns the running graph: book, positions, workers, venue, feed and
// the status server.
type App struct {
	cfg *config.Config

	store   store.Store
	ledger  *database.LedgerStore
	book    *book.Book
	guard   *exchange.Guarded
	paper   *paper.Venue
	live    *binance.Venue
	alerter *notifier.Alerter

	orch       *orchestrator.Orchestrator
	engine     *strategy.Engine
	dispatcher *trader.Dispatcher
	pump       *market.Pump
	http       *statushttp.Server

	Summary *StartupSummary

	runMu  sync.Mutex
	runCtx context.Context

	closers   []func() error
	closeOnce sync.Once
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every component and blocks until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.closeAll()

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	a.runMu.Lock()
	a.runCtx = ctx
	a.runMu.Unlock()

	a.dispatcher.Start(ctx)
	defer a.dispatcher.Stop()

	a.book.Subscribe(a.onBookChange)
	if a.cfg.Book.Watch {
		if err := a.book.Watch(); err != nil {
			logger.Warnf("position book watch disabled: %v", err)
		}
	}

	if a.pump != nil {
		if symbols := a.orch.Symbols(); len(symbols) > 0 {
			if err := a.pump.Start(ctx, symbols); err != nil {
				return fmt.Errorf("start market feed: %w", err)
			}
		}
		defer a.pump.Close()
	}

	group.Go(func() error {
		return a.alerter.Run(ctx)
	})
	if a.live != nil {
		group.Go(func() error {
			return a.live.Run(ctx)
		})
	}
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// SyncTick applies one price synchronously: the paper venue sees it first
// so any stop it crosses fills before the strategy reacts.
func (a *App) SyncTick(ctx context.Context, symbol string, price float64) error {
	if a.paper != nil {
		a.paper.OnPrice(symbol, price)
	}
	return a.dispatcher.SyncTick(ctx, symbol, price)
}

// Stats is served at /api/stats.
type Stats struct {
	Venue   string               `json:"venue"`
	Breaker string               `json:"breaker"`
	Workers []trader.WorkerStats `json:"workers"`
	Feed    *market.SourceStats  `json:"feed,omitempty"`
	Alerts  int                  `json:"alerts_dropped"`
}

func (a *App) Stats() Stats {
	s := Stats{
		Venue:   a.guard.Name(),
		Breaker: a.guard.Breaker().State().String(),
		Workers: a.dispatcher.Stats(),
		Alerts:  a.alerter.Dropped(),
	}
	if a.pump != nil {
		feed := a.pump.Stats()
		s.Feed = &feed
	}
	return s
}

func (a *App) closeAll() {
	a.closeOnce.Do(func() {
		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	})
}

func (a *App) context() context.Context {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.runCtx == nil {
		return context.Background()
	}
	return a.runCtx
}
