package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) SubscribeTrades(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TickEvent, error) {
	args := m.Called(ctx, symbols, opts)
	ch, _ := args.Get(0).(chan TickEvent)
	return ch, args.Error(1)
}

func (m *MockSource) Stats() SourceStats {
	args := m.Called()
	return args.Get(0).(SourceStats)
}

func (m *MockSource) Close() error {
	args := m.Called()
	return args.Error(0)
}

type collector struct {
	mu   sync.Mutex
	seen []TickEvent
}

func (c *collector) OnPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, TickEvent{Symbol: symbol, Price: price})
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func TestPumpForwardsToSinksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan TickEvent, 4)
	src := &MockSource{}
	src.On("SubscribeTrades", mock.Anything, []string{"BTCUSDT"}, mock.Anything).Return(ch, nil).Once()

	var order []string
	var mu sync.Mutex
	first := SinkFunc(func(string, float64) { mu.Lock(); order = append(order, "paper"); mu.Unlock() })
	second := &collector{}

	p := NewPump(src, []TickSink{first, second})
	require.NoError(t, p.Start(ctx, []string{"BTCUSDT"}))

	ch <- TickEvent{Symbol: "btcusdt", Price: 20}
	ch <- TickEvent{Symbol: "BTCUSDT", Price: 0}
	ch <- TickEvent{Symbol: "BTCUSDT", Price: 21}
	close(ch)

	require.Eventually(t, func() bool { return second.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []TickEvent{{Symbol: "BTCUSDT", Price: 20}, {Symbol: "BTCUSDT", Price: 21}}, second.seen)
	mu.Lock()
	assert.Equal(t, []string{"paper", "paper"}, order)
	mu.Unlock()
	src.AssertExpectations(t)
}

func TestPumpAddResubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &MockSource{}
	src.On("SubscribeTrades", mock.Anything, []string{"BTCUSDT"}, mock.Anything).Return(make(chan TickEvent), nil).Once()
	src.On("SubscribeTrades", mock.Anything, []string{"BTCUSDT", "ETHUSDT"}, mock.Anything).Return(make(chan TickEvent), nil).Once()

	p := NewPump(src, nil)
	require.NoError(t, p.Start(ctx, []string{"BTCUSDT"}))
	require.NoError(t, p.Add(ctx, "ethusdt"))
	require.NoError(t, p.Add(ctx, "BTCUSDT"))
	src.AssertExpectations(t)
}

func TestPumpStartRequiresSymbols(t *testing.T) {
	p := NewPump(&MockSource{}, nil)
	assert.Error(t, p.Start(context.Background(), nil))
	assert.Error(t, NewPump(nil, nil).Start(context.Background(), []string{"X"}))
}
