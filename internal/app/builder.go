package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ratchet/internal/book"
	"ratchet/internal/config"
	"ratchet/internal/gateway"
	"ratchet/internal/gateway/database"
	"ratchet/internal/gateway/exchange"
	"ratchet/internal/gateway/notifier"
	"ratchet/internal/logger"
	"ratchet/internal/market"
	"ratchet/internal/orchestrator"
	"ratchet/internal/store"
	"ratchet/internal/store/gormstore"
	"ratchet/internal/strategy"
	"ratchet/internal/trader"
	statushttp "ratchet/internal/transport/http/status"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn    func(config.StoreConfig) (store.Store, error)
	ledgerFn   func(string) (*database.LedgerStore, error)
	eventLogFn func(config.StoreConfig, store.EventLog) (trader.EventStore, error)
	venueFn    func(config.VenueConfig) (gateway.VenueSet, error)
	sourceFn   func(*config.Config) (market.Source, error)
	notifierFn func(config.NotifyConfig) notifier.TextNotifier
	bookFn     func(config.BookConfig) (*book.Book, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource replaces the configured market-data source.
func WithSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config) (market.Source, error) { return src, nil }
	}
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifierFn = func(config.NotifyConfig) notifier.TextNotifier { return n }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    openStore,
		ledgerFn:   database.NewLedgerStore,
		eventLogFn: openEventLog,
		venueFn:    gateway.NewVenueFromConfig,
		sourceFn:   gateway.NewSourceFromConfig,
		notifierFn: buildNotifier,
		bookFn:     loadBook,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.closeAll()
		}
	}()

	st, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.store = st
	app.closers = append(app.closers, st.Close)

	ledger, err := b.ledgerFn(cfg.Store.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	app.ledger = ledger
	app.closers = append(app.closers, ledger.Close)

	events, err := b.eventLogFn(cfg.Store, st)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if events != nil {
		app.closers = append(app.closers, events.Close)
	}

	venues, err := b.venueFn(cfg.Venue)
	if err != nil {
		return nil, fmt.Errorf("build venue: %w", err)
	}
	app.paper = venues.Paper
	app.live = venues.Live
	guarded := exchange.NewGuarded(venues.Venue, exchange.GuardConfig{
		RatePerSec:       cfg.Venue.RateLimitPerSec,
		Burst:            cfg.Venue.RateBurst,
		BreakerThreshold: cfg.Venue.BreakerThreshold,
		BreakerTimeout:   time.Duration(cfg.Venue.BreakerTimeoutSeconds) * time.Second,
	})
	app.guard = guarded

	app.alerter = notifier.NewAlerter(b.notifierFn(cfg.Notify))

	orch := orchestrator.New(guarded,
		orchestrator.WithObserver(store.NewSnapshotRecorder(st)),
		orchestrator.WithObserver(database.NewLedgerObserver(ledger)),
		orchestrator.WithObserver(app.alerter),
	)
	engine := strategy.NewEngine(strategy.Config{
		InitialMargin:       cfg.Strategy.InitialMargin,
		MaintenanceMargin:   cfg.Strategy.MaintenanceMargin,
		MinProfitPct:        cfg.Strategy.MinProfitPct,
		CommissionRate:      cfg.Strategy.CommissionRate,
		CommissionMin:       cfg.Strategy.CommissionMin,
		MovingAverageWindow: cfg.Strategy.MovingAverageWindow,
	}, orch)
	orch.SetFillListener(engine)

	dispatcherOpts := []trader.DispatcherOption{
		trader.WithErrorHandler(func(symbol string, t trader.EventType, err error) {
			app.alerter.EventFailed(symbol, string(t), err)
		}),
	}
	if events != nil {
		dispatcherOpts = append(dispatcherOpts, trader.WithEventStore(events))
	}
	dispatcher := trader.NewDispatcher(trader.Config{
		QueueSize:     cfg.Trader.QueueSize,
		SlowThreshold: time.Duration(cfg.Trader.SlowEventMS) * time.Millisecond,
	}, engine, orch, dispatcherOpts...)
	orch.SetFillRouter(dispatcher.SubmitFill)

	app.orch = orch
	app.engine = engine
	app.dispatcher = dispatcher

	bk, err := b.bookFn(cfg.Book)
	if err != nil {
		return nil, fmt.Errorf("load position book: %w", err)
	}
	app.book = bk

	src, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}
	if src != nil {
		sinks := []market.TickSink{}
		if app.paper != nil {
			sinks = append(sinks, market.SinkFunc(func(symbol string, price float64) { app.paper.OnPrice(symbol, price) }))
		}
		sinks = append(sinks, market.SinkFunc(dispatcher.SubmitTick))
		app.pump = market.NewPump(src, sinks, market.WithCallbacks(
			func() { logger.Infof("[feed] connected") },
			func(err error) {
				if err != nil {
					logger.Warnf("[feed] disconnected: %v", err)
				}
			},
		))
	}

	if err := app.restorePositions(ctx, bk.Snapshot()); err != nil {
		return nil, err
	}

	httpServer, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Positions: orch,
		Ticks:     app,
		Ledger:    ledger,
		Stats:     func() any { return app.Stats() },
	})
	if err != nil {
		return nil, err
	}
	app.http = httpServer
	app.Summary = newStartupSummary(cfg, app.orch.Snapshots())
	return app, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	return gormstore.NewGormStore(cfg.SnapshotPath)
}

// openEventLog picks where worker events are journaled: the snapshot
// database, a JSONL file, or nowhere.
func openEventLog(cfg config.StoreConfig, db store.EventLog) (trader.EventStore, error) {
	kind := strings.TrimSpace(cfg.EventLog)
	switch {
	case kind == "" || strings.EqualFold(kind, "none"):
		return nil, nil
	case strings.EqualFold(kind, "sqlite"):
		return trader.NewSQLiteEventStore(db), nil
	default:
		return trader.NewFileEventStore(kind)
	}
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	tg := cfg.Telegram
	if !tg.Enabled || strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return notifier.Nop{}
	}
	return notifier.NewTelegram(tg.BotToken, tg.ChatID)
}

func loadBook(cfg config.BookConfig) (*book.Book, error) {
	return book.Load(cfg.Path)
}
