package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ratchet/internal/logger"
	"ratchet/internal/market"
	"ratchet/internal/pkg/convert"
	symbolpkg "ratchet/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// Source streams USDⓈ-M futures aggregate trades as ticks.
type Source struct {
	cfg Config

	mu          sync.Mutex
	tradeCancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

var _ market.Source = (*Source)(nil)

func NewSource(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if err := applyWsProxy(final); err != nil {
		return nil, err
	}
	return &Source{cfg: final}, nil
}

func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols are required for trade subscription")
	}

	symbolMap := make(map[string]string)
	cleanSymbols := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		normalized := symbolpkg.Normalize(sym)
		if normalized == "" {
			continue
		}
		clean := symbolpkg.Binance.ToExchange(normalized)
		if _, dup := symbolMap[clean]; dup {
			continue
		}
		symbolMap[clean] = normalized
		cleanSymbols = append(cleanSymbols, clean)
	}
	if len(cleanSymbols) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.TickEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.tradeCancel != nil {
		s.tradeCancel()
	}
	s.tradeCancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.runTradeLoop(subCtx, cleanSymbols, symbolMap, out, opts)
	}()
	return out, nil
}

func (s *Source) runTradeLoop(ctx context.Context, symbols []string, symbolMap map[string]string, out chan<- market.TickEvent, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsAggTradeEvent) {
			te, ok := convertAggTradeEvent(event)
			if !ok {
				return
			}
			if original, ok := symbolMap[te.Symbol]; ok {
				te.Symbol = original
			}
			select {
			case <-ctx.Done():
				return
			case out <- te:
			default:
				logger.Warnf("[binance] aggTrade channel full, drop %s", te.Symbol)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsCombinedAggTradeServe(symbols, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
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
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tradeCancel != nil {
		s.tradeCancel()
		s.tradeCancel = nil
	}
	return nil
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

func convertAggTradeEvent(ev *futures.WsAggTradeEvent) (market.TickEvent, bool) {
	if ev == nil {
		return market.TickEvent{}, false
	}
	price := parseFloat(ev.Price)
	if price <= 0 {
		return market.TickEvent{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return market.TickEvent{}, false
	}
	return market.TickEvent{
		Symbol:    symbol,
		Price:     price,
		Quantity:  parseFloat(ev.Quantity),
		EventTime: ev.Time,
	}, true
}

// applyWsProxy sets the SDK-wide websocket proxy. It is package state in
// go-binance, so the last configured proxy wins.
func applyWsProxy(cfg Config) error {
	if !cfg.ProxyEnabled {
		return nil
	}
	wsProxy := cfg.WSProxyURL
	if wsProxy == "" {
		wsProxy = cfg.RESTProxyURL
	}
	if wsProxy == "" {
		return nil
	}
	if _, err := url.Parse(wsProxy); err != nil {
		return fmt.Errorf("invalid ws proxy url: %w", err)
	}
	futures.SetWsProxyUrl(wsProxy)
	return nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	return httpClient, nil
}

func parseFloat(v string) float64 {
	return convert.FloatOrZero(v)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
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
