// Package gate streams Gate.io USDT futures trades as ticks.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ratchet/internal/logger"
	"ratchet/internal/market"
	"ratchet/internal/pkg/convert"
	symbolpkg "ratchet/internal/pkg/symbol"

	gatews "github.com/gateio/gatews/go"
	"github.com/gorilla/websocket"
)

const defaultTradeBufSize = 1024

type Source struct {
	cfg Config

	tradeMu    sync.Mutex
	tradeClose context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats

	prevWSProxy func(*http.Request) (*url.URL, error)
	wsProxySet  bool
}

var _ market.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.ProxyEnabled && final.WSProxyURL != "" {
		if _, err := url.Parse(final.WSProxyURL); err != nil {
			return nil, fmt.Errorf("invalid gate WS proxy url: %w", err)
		}
	}
	return &Source{cfg: final}, nil
}

func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	contracts, symbolMap := normalizeGateSymbols(symbols)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultTradeBufSize
	}

	subCtx, cancel := context.WithCancel(ctx)

	s.tradeMu.Lock()
	if s.tradeClose != nil {
		s.tradeClose()
	}
	s.tradeClose = cancel
	s.tradeMu.Unlock()

	out := make(chan market.TickEvent, buffer)
	go func() {
		defer close(out)
		s.runTradeLoop(subCtx, contracts, symbolMap, out, opts)
	}()
	return out, nil
}

func (s *Source) runTradeLoop(ctx context.Context, contracts []string, symbolMap map[string]string, out chan<- market.TickEvent, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		subCtx, cancel := context.WithCancel(ctx)
		ws, err := s.newWsService(subCtx)
		if err != nil {
			s.recordSubscribeError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			cancel()
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		ws.SetCallBack(gatews.ChannelFutureTrade, gatews.NewCallBack(func(msg *gatews.UpdateMsg) {
			evt, ok := convertTradeUpdate(msg, symbolMap)
			if !ok {
				return
			}
			select {
			case <-subCtx.Done():
				return
			case out <- evt:
			default:
				logger.Warnf("[gate] trade channel full, drop %s", evt.Symbol)
			}
		}))

		var firstErr error
		for _, contract := range contracts {
			if err := ws.Subscribe(gatews.ChannelFutureTrade, []string{contract}); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				s.recordSubscribeError(err)
			}
		}
		if firstErr != nil {
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(firstErr)
			}
			cancel()
			closeWs(ws)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		delay = time.Second
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		if err := s.monitorGateWS(subCtx, ws, opts); err != nil {
			s.recordReconnect(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
		}
		cancel()
		closeWs(ws)
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func closeWs(ws *gatews.WsService) {
	if conn := ws.GetConnection(); conn != nil {
		_ = conn.Close()
	}
}

// monitorGateWS polls the SDK's connection status. The SDK reconnects on
// its own; a connection that stays down for maxReconnect is rebuilt.
func (s *Source) monitorGateWS(ctx context.Context, ws *gatews.WsService, opts market.SubscribeOptions) error {
	const (
		checkInterval = 5 * time.Second
		maxReconnect  = 30 * time.Second
	)
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	lastStatus := ws.Status()
	var reconnectSince time.Time
	if lastStatus != "connected" {
		reconnectSince = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status := ws.Status()
			if status != lastStatus {
				if status == "connected" {
					if opts.OnConnect != nil {
						opts.OnConnect()
					}
				} else {
					if lastStatus == "connected" {
						s.recordReconnect(nil)
					}
					if opts.OnDisconnect != nil {
						opts.OnDisconnect(fmt.Errorf("gate ws status=%s", status))
					}
				}
				lastStatus = status
			}
			if status == "connected" {
				reconnectSince = time.Time{}
				continue
			}
			if reconnectSince.IsZero() {
				reconnectSince = time.Now()
			}
			if time.Since(reconnectSince) > maxReconnect {
				return fmt.Errorf("gate ws reconnect timeout (%s)", status)
			}
		}
	}
}

func (s *Source) newWsService(ctx context.Context) (*gatews.WsService, error) {
	if err := s.ensureWSProxy(); err != nil {
		return nil, err
	}
	conf := gatews.NewConnConfFromOption(&gatews.ConfOptions{
		App: "futures",
		URL: gatews.FuturesUsdtUrl,
	})
	return gatews.NewWsService(ctx, nil, conf)
}

// ensureWSProxy sets the proxy on gorilla's default dialer, which the SDK
// dials through. Close restores the previous proxy.
func (s *Source) ensureWSProxy() error {
	if s.wsProxySet || !s.cfg.ProxyEnabled || s.cfg.WSProxyURL == "" {
		return nil
	}
	proxyURL, err := url.Parse(s.cfg.WSProxyURL)
	if err != nil {
		return fmt.Errorf("invalid gate WS proxy url: %w", err)
	}
	s.prevWSProxy = websocket.DefaultDialer.Proxy
	websocket.DefaultDialer.Proxy = http.ProxyURL(proxyURL)
	s.wsProxySet = true
	return nil
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.tradeMu.Lock()
	if s.tradeClose != nil {
		s.tradeClose()
		s.tradeClose = nil
	}
	s.tradeMu.Unlock()

	if s.wsProxySet {
		websocket.DefaultDialer.Proxy = s.prevWSProxy
		s.wsProxySet = false
	}
	return nil
}

func normalizeGateSymbols(symbols []string) ([]string, map[string]string) {
	symbolMap := make(map[string]string)
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		norm := symbolpkg.Normalize(sym)
		contract := symbolpkg.Gate.ToExchange(norm)
		if contract == "" {
			continue
		}
		if _, ok := symbolMap[contract]; ok {
			continue
		}
		symbolMap[contract] = norm
		out = append(out, contract)
	}
	return out, symbolMap
}

// convertTradeUpdate reads the last trade of a batch. Results arrive either
// as an array of trades or as a single trade object.
func convertTradeUpdate(msg *gatews.UpdateMsg, symbolMap map[string]string) (market.TickEvent, bool) {
	if msg == nil {
		return market.TickEvent{}, false
	}

	var trade gatews.FuturesTrade
	var arr []json.RawMessage
	if err := json.Unmarshal(msg.Result, &arr); err == nil && len(arr) > 0 {
		if err := json.Unmarshal(arr[len(arr)-1], &trade); err != nil {
			return market.TickEvent{}, false
		}
	} else if err := json.Unmarshal(msg.Result, &trade); err != nil {
		return market.TickEvent{}, false
	}

	contract := strings.ToUpper(strings.TrimSpace(trade.Contract))
	if contract == "" {
		return market.TickEvent{}, false
	}
	symbol := symbolpkg.Gate.FromExchange(contract)
	if original, ok := symbolMap[contract]; ok && original != "" {
		symbol = original
	}

	price := convert.FloatOrZero(trade.Price)
	if symbol == "" || price <= 0 {
		return market.TickEvent{}, false
	}

	eventTime := trade.CreateTimeMs
	if eventTime == 0 && trade.CreateTime != 0 {
		eventTime = trade.CreateTime * 1000
	}
	return market.TickEvent{
		Symbol:    symbol,
		Price:     price,
		Quantity:  math.Abs(float64(trade.Size)),
		EventTime: eventTime,
	}, true
}

func (s *Source) recordSubscribeError(err error) {
	if err == nil {
		return
	}
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil && err.Error() != "" {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
