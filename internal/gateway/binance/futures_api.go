package binance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

// codeUnknownOrder is returned when cancelling an order the venue does not
// know, including one that already filled.
const codeUnknownOrder = -2011

type precision struct {
	quantity int
	price    int
}

// orderAPI is the part of the futures REST API the venue uses.
type orderAPI interface {
	CreateStop(ctx context.Context, symbol string, side futures.SideType, quantity, stopPrice, clientID string) error
	Cancel(ctx context.Context, symbol, clientID string) error
	Precision(ctx context.Context, symbol string) (precision, error)
	StartUserStream(ctx context.Context) (string, error)
	KeepAlive(ctx context.Context, listenKey string) error
}

type futuresAPI struct {
	client *futures.Client

	mu        sync.Mutex
	precision map[string]precision
}

func newFuturesAPI(cfg Config) (*futuresAPI, error) {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if !cfg.Testnet {
		client.BaseURL = cfg.RESTBaseURL
	}
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient
	return &futuresAPI{client: client, precision: make(map[string]precision)}, nil
}

func (a *futuresAPI) CreateStop(ctx context.Context, symbol string, side futures.SideType, quantity, stopPrice, clientID string) error {
	_, err := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeStopMarket).
		StopPrice(stopPrice).
		Quantity(quantity).
		WorkingType(futures.WorkingTypeContractPrice).
		NewClientOrderID(clientID).
		Do(ctx)
	return err
}

func (a *futuresAPI) Cancel(ctx context.Context, symbol, clientID string) error {
	_, err := a.client.NewCancelOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientID).
		Do(ctx)
	return err
}

// Precision loads exchange info once and serves every symbol from it.
func (a *futuresAPI) Precision(ctx context.Context, symbol string) (precision, error) {
	a.mu.Lock()
	p, ok := a.precision[symbol]
	loaded := len(a.precision) > 0
	a.mu.Unlock()
	if ok {
		return p, nil
	}
	if loaded {
		return precision{}, fmt.Errorf("symbol %s not listed", symbol)
	}
	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return precision{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range info.Symbols {
		a.precision[s.Symbol] = precision{quantity: s.QuantityPrecision, price: s.PricePrecision}
	}
	p, ok = a.precision[symbol]
	if !ok {
		return precision{}, fmt.Errorf("symbol %s not listed", symbol)
	}
	return p, nil
}

func (a *futuresAPI) StartUserStream(ctx context.Context) (string, error) {
	return a.client.NewStartUserStreamService().Do(ctx)
}

func (a *futuresAPI) KeepAlive(ctx context.Context, listenKey string) error {
	return a.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
}

func isUnknownOrder(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeUnknownOrder
}

// isRetryable treats transport failures and the venue's overload and
// clock errors as worth another attempt. Rejections are final.
func isRetryable(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.Code {
	case -1000, -1001, -1003, -1006, -1007, -1021:
		return true
	default:
		return false
	}
}
