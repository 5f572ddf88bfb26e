package strategy

import (
	"sync"

	"github.com/markcheno/go-talib"
)

// smoother keeps the last window prices of one symbol.
type smoother struct {
	window int
	prices []float64
}

func (s *smoother) next(price float64) float64 {
	s.prices = append(s.prices, price)
	if len(s.prices) > s.window {
		s.prices = s.prices[len(s.prices)-s.window:]
	}
	if len(s.prices) < s.window {
		return price
	}
	sma := talib.Sma(s.prices, s.window)
	if len(sma) == 0 {
		return price
	}
	if v := sma[len(sma)-1]; v > 0 {
		return v
	}
	return price
}

type smoothers struct {
	window int
	mu     sync.Mutex
	bySym  map[string]*smoother
}

func newSmoothers(window int) *smoothers {
	return &smoothers{window: window, bySym: make(map[string]*smoother)}
}

// apply returns the smoothed price. Each symbol's buffer is only touched by
// that symbol's goroutine; the lock covers the map.
func (s *smoothers) apply(symbol string, price float64) float64 {
	if s.window <= 1 {
		return price
	}
	s.mu.Lock()
	sm, ok := s.bySym[symbol]
	if !ok {
		sm = &smoother{window: s.window}
		s.bySym[symbol] = sm
	}
	s.mu.Unlock()
	return sm.next(price)
}
