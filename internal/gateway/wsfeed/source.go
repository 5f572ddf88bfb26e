// Package wsfeed reads trade prices from any JSON websocket feed. Symbol and
// price are picked from each message with gjson paths.
package wsfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"ratchet/internal/logger"
	"ratchet/internal/market"
	"ratchet/internal/pkg/convert"
	symbolpkg "ratchet/internal/pkg/symbol"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const symbolsPlaceholder = "{symbols}"

type Config struct {
	URL        string
	SymbolPath string
	PricePath  string
	// Subscribe is sent after every connect. {symbols} expands to a quoted,
	// comma separated list of the subscribed symbols.
	Subscribe        string
	ProxyURL         string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.SymbolPath == "" {
		c.SymbolPath = "s"
	}
	if c.PricePath == "" {
		c.PricePath = "p"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	return c
}

type Source struct {
	cfg    Config
	dialer websocket.Dialer

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   market.SourceStats
}

var _ market.Source = (*Source)(nil)

func NewSource(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.URL) == "" {
		return nil, fmt.Errorf("websocket feed url is required")
	}
	if _, err := url.Parse(final.URL); err != nil {
		return nil, fmt.Errorf("invalid websocket feed url: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: final.HandshakeTimeout}
	if final.ProxyURL != "" {
		proxyURL, err := url.Parse(final.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid websocket proxy url: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}
	return &Source{cfg: final, dialer: dialer}, nil
}

func (s *Source) SubscribeTrades(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	wanted := make(map[string]struct{}, len(symbols))
	clean := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		norm := symbolpkg.Normalize(sym)
		if norm == "" {
			continue
		}
		if _, dup := wanted[norm]; dup {
			continue
		}
		wanted[norm] = struct{}{}
		clean = append(clean, norm)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("no valid symbols for trade subscription")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.TickEvent, buffer)
	subCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(out)
		s.run(subCtx, clean, wanted, out, opts)
	}()
	return out, nil
}

func (s *Source) run(ctx context.Context, symbols []string, wanted map[string]struct{}, out chan<- market.TickEvent, opts market.SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.connect(ctx, symbols)
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
		err = s.read(ctx, conn, wanted, out)
		if ctx.Err() != nil {
			return
		}
		s.recordReconnect(err)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(err)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *Source) connect(ctx context.Context, symbols []string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	if msg := subscribeMessage(s.cfg.Subscribe, symbols); msg != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("send subscribe: %w", err)
		}
	}
	logger.Infof("[wsfeed] connected %s symbols=%v", s.cfg.URL, symbols)
	return conn, nil
}

func (s *Source) read(ctx context.Context, conn *websocket.Conn, wanted map[string]struct{}, out chan<- market.TickEvent) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		for _, te := range parseTicks(msg, s.cfg.SymbolPath, s.cfg.PricePath) {
			if _, ok := wanted[te.Symbol]; !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case out <- te:
			default:
				logger.Warnf("[wsfeed] tick channel full, drop %s", te.Symbol)
			}
		}
	}
}

// parseTicks reads one tick from an object message, or one per element when
// the message is an array. Anything else is ignored.
func parseTicks(msg []byte, symbolPath, pricePath string) []market.TickEvent {
	if !gjson.ValidBytes(msg) {
		return nil
	}
	root := gjson.ParseBytes(msg)
	var items []gjson.Result
	if root.IsArray() {
		items = root.Array()
	} else {
		items = []gjson.Result{root}
	}
	ticks := make([]market.TickEvent, 0, len(items))
	for _, item := range items {
		sym := symbolpkg.Normalize(item.Get(symbolPath).String())
		price := resultFloat(item.Get(pricePath))
		if sym == "" || price <= 0 {
			continue
		}
		ticks = append(ticks, market.TickEvent{Symbol: sym, Price: price, EventTime: time.Now().UnixMilli()})
	}
	return ticks
}

// resultFloat accepts numbers and numeric strings.
func resultFloat(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		return convert.FloatOrZero(r.Str)
	default:
		return 0
	}
}

func subscribeMessage(tmpl string, symbols []string) string {
	tmpl = strings.TrimSpace(tmpl)
	if tmpl == "" {
		return ""
	}
	quoted := make([]string, len(symbols))
	for i, sym := range symbols {
		quoted[i] = strconv.Quote(sym)
	}
	return strings.ReplaceAll(tmpl, symbolsPlaceholder, strings.Join(quoted, ","))
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *Source) recordSubscribeError(err error) {
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil {
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
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
