package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ratchet/internal/gateway/exchange"
	"ratchet/internal/logger"
	"ratchet/internal/position"
	symbolpkg "ratchet/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var wsUserDataServe = futures.WsUserDataServe

// Venue places STOP_MARKET orders on USDⓈ-M futures and reports fills from
// the user-data stream. Order ids are the client order ids it generates.
type Venue struct {
	cfg Config
	api orderAPI

	mu         sync.Mutex
	handlers   map[string]exchange.FillHandler
	commission map[string]float64
}

var _ exchange.Venue = (*Venue)(nil)

func NewVenue(cfg Config) (*Venue, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" || strings.TrimSpace(final.APISecret) == "" {
		return nil, fmt.Errorf("binance venue requires api key and secret")
	}
	api, err := newFuturesAPI(final)
	if err != nil {
		return nil, err
	}
	if err := applyWsProxy(final); err != nil {
		return nil, err
	}
	return newVenue(final, api), nil
}

func newVenue(cfg Config, api orderAPI) *Venue {
	return &Venue{
		cfg:        cfg,
		api:        api,
		handlers:   make(map[string]exchange.FillHandler),
		commission: make(map[string]float64),
	}
}

func (v *Venue) Name() string { return "binance" }

func (v *Venue) PlaceStop(ctx context.Context, req exchange.StopRequest) (string, error) {
	symbol := symbolpkg.Binance.ToExchange(req.Symbol)
	if symbol == "" || req.Quantity <= 0 || req.StopPrice <= 0 {
		return "", &exchange.Error{Op: "place", Symbol: req.Symbol, Err: fmt.Errorf("invalid stop request %+v", req)}
	}
	prec, err := v.api.Precision(ctx, symbol)
	if err != nil {
		return "", &exchange.Error{Op: "place", Symbol: req.Symbol, Retryable: isRetryable(err), Err: err}
	}
	qty := decimal.NewFromFloat(req.Quantity).Truncate(int32(prec.quantity))
	if !qty.IsPositive() {
		return "", &exchange.Error{Op: "place", Symbol: req.Symbol, Err: fmt.Errorf("quantity %v below lot precision", req.Quantity)}
	}
	stop := decimal.NewFromFloat(req.StopPrice).Round(int32(prec.price))

	// STOP_MARKET orders cannot be amended, so a move is cancel then create.
	// An unknown existing order has usually just filled; nothing is created.
	moved := req.ExistingOrderID != ""
	if moved {
		if err := v.api.Cancel(ctx, symbol, req.ExistingOrderID); err != nil {
			if isUnknownOrder(err) {
				return "", &exchange.Error{Op: "move", Symbol: req.Symbol, OrderID: req.ExistingOrderID, Err: fmt.Errorf("%w: %v", exchange.ErrOrderNotFound, err)}
			}
			return "", &exchange.Error{Op: "move", Symbol: req.Symbol, OrderID: req.ExistingOrderID, Retryable: isRetryable(err), Err: err}
		}
	}

	clientID := "rt-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := v.api.CreateStop(ctx, symbol, toSideType(req.Side), qty.String(), stop.String(), clientID); err != nil {
		return "", &exchange.Error{Op: "place", Symbol: req.Symbol, OrderID: req.ExistingOrderID, Retryable: isRetryable(err), Cancelled: moved, Err: err}
	}
	logger.Debugf("[binance] stop %s %s qty=%s stop=%s id=%s", req.Side, symbol, qty, stop, clientID)
	return clientID, nil
}

func (v *Venue) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := v.api.Cancel(ctx, symbolpkg.Binance.ToExchange(symbol), orderID)
	if err == nil {
		return nil
	}
	if isUnknownOrder(err) {
		return &exchange.Error{Op: "cancel", Symbol: symbol, OrderID: orderID, Err: fmt.Errorf("%w: %v", exchange.ErrOrderNotFound, err)}
	}
	return &exchange.Error{Op: "cancel", Symbol: symbol, OrderID: orderID, Retryable: isRetryable(err), Err: err}
}

func (v *Venue) SubscribeFills(symbol string, handler exchange.FillHandler) error {
	symbol = symbolpkg.Binance.ToExchange(symbol)
	if symbol == "" || handler == nil {
		return fmt.Errorf("subscribe fills: symbol and handler are required")
	}
	v.mu.Lock()
	v.handlers[symbol] = handler
	v.mu.Unlock()
	return nil
}

// Run keeps the user-data stream open until ctx ends, reconnecting with
// backoff and refreshing the listen key.
func (v *Venue) Run(ctx context.Context) error {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := v.serveUserData(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warnf("[binance] user data stream: %v", err)
		}
		if !sleepWithContext(ctx, delay) {
			return nil
		}
		delay = nextDelay(delay)
	}
}

func (v *Venue) serveUserData(ctx context.Context) error {
	listenKey, err := v.api.StartUserStream(ctx)
	if err != nil {
		return fmt.Errorf("start user stream: %w", err)
	}
	var errMu sync.Mutex
	var lastErr error
	doneC, stopC, err := wsUserDataServe(listenKey, v.handleUserData, func(err error) {
		errMu.Lock()
		lastErr = err
		errMu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("serve user data: %w", err)
	}
	logger.Infof("[binance] user data stream connected")
	keepAlive := time.NewTicker(v.cfg.ListenKeyKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return nil
		case <-doneC:
			errMu.Lock()
			defer errMu.Unlock()
			if lastErr != nil {
				return lastErr
			}
			return errors.New("user data stream closed")
		case <-keepAlive.C:
			if err := v.api.KeepAlive(ctx, listenKey); err != nil {
				logger.Warnf("[binance] listen key keepalive: %v", err)
			}
		}
	}
}

// handleUserData reports an order once, when it is fully filled, at its
// average price with the commission of all its trades.
func (v *Venue) handleUserData(ev *futures.WsUserDataEvent) {
	if ev == nil || ev.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return
	}
	u := ev.OrderTradeUpdate
	if u.ExecutionType != futures.OrderExecutionTypeTrade {
		return
	}
	v.mu.Lock()
	v.commission[u.ClientOrderID] += parseFloat(u.Commission)
	if u.Status != futures.OrderStatusTypeFilled {
		v.mu.Unlock()
		return
	}
	commission := v.commission[u.ClientOrderID]
	delete(v.commission, u.ClientOrderID)
	handler := v.handlers[strings.ToUpper(u.Symbol)]
	v.mu.Unlock()

	qty := parseFloat(u.AccumulatedFilledQty)
	price := parseFloat(u.AveragePrice)
	if price <= 0 {
		price = parseFloat(u.LastFilledPrice)
	}
	if handler == nil || qty <= 0 || price <= 0 {
		return
	}
	handler(exchange.Fill{
		OrderID:    u.ClientOrderID,
		Symbol:     symbolpkg.Binance.FromExchange(u.Symbol),
		Side:       fromSideType(u.Side),
		Quantity:   qty,
		Price:      price,
		Cost:       qty * price,
		Commission: commission,
		FilledAt:   time.UnixMilli(u.TradeTime),
	})
}

func toSideType(side position.Side) futures.SideType {
	if side == position.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func fromSideType(side futures.SideType) position.Side {
	if side == futures.SideTypeSell {
		return position.SideSell
	}
	return position.SideBuy
}
