package trader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ratchet/internal/gateway/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingTicks struct {
	mu      sync.Mutex
	prices  []float64
	started chan struct{}
	release chan struct{}
	panicAt float64
	failAt  float64
}

func (r *recordingTicks) OnTick(_ context.Context, _ string, price float64) error {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	if price == r.panicAt {
		panic("boom")
	}
	if price == r.failAt {
		return errors.New("rejected")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices = append(r.prices, price)
	return nil
}

func (r *recordingTicks) seen() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.prices...)
}

type MockFills struct {
	mock.Mock
}

func (m *MockFills) OnFill(ctx context.Context, fill exchange.Fill) error {
	args := m.Called(ctx, fill)
	return args.Error(0)
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})
}

func TestSyncTickRunsInOrder(t *testing.T) {
	ticks := &recordingTicks{}
	d := NewDispatcher(Config{QueueSize: 4}, ticks, nil)
	d.AddSymbol("btcusdt")
	startDispatcher(t, d)

	for _, p := range []float64{10, 11, 12} {
		require.NoError(t, d.SyncTick(context.Background(), "BTCUSDT", p))
	}
	assert.Equal(t, []float64{10, 11, 12}, ticks.seen())
	assert.Equal(t, []string{"BTCUSDT"}, d.Symbols())
}

func TestSyncTickRejectsUnknownSymbolAndBadPrice(t *testing.T) {
	d := NewDispatcher(Config{}, &recordingTicks{}, nil)
	d.AddSymbol("BTCUSDT")
	startDispatcher(t, d)

	err := d.SyncTick(context.Background(), "DOGEUSDT", 1)
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Error(t, d.SyncTick(context.Background(), "BTCUSDT", 0))

	// fire-and-forget path drops silently
	d.SubmitTick("DOGEUSDT", 1)
	d.SubmitTick("BTCUSDT", -1)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	ticks := &recordingTicks{panicAt: 13, failAt: 14}
	var failures []EventType
	var mu sync.Mutex
	d := NewDispatcher(Config{}, ticks, nil, WithErrorHandler(func(_ string, typ EventType, _ error) {
		mu.Lock()
		failures = append(failures, typ)
		mu.Unlock()
	}))
	d.AddSymbol("BTCUSDT")
	startDispatcher(t, d)

	err := d.SyncTick(context.Background(), "BTCUSDT", 13)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	assert.EqualError(t, d.SyncTick(context.Background(), "BTCUSDT", 14), "rejected")
	require.NoError(t, d.SyncTick(context.Background(), "BTCUSDT", 15))
	assert.Equal(t, []float64{15}, ticks.seen())

	mu.Lock()
	assert.Equal(t, []EventType{EvtTick, EvtTick}, failures)
	mu.Unlock()

	stats := d.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(3), stats[0].Processed)
	assert.Equal(t, int64(2), stats[0].Failed)
}

func TestFullQueueCoalescesTicks(t *testing.T) {
	ticks := &recordingTicks{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	w := newWorker("BTCUSDT", ticks, nil, workerOptions{queueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	offer := func(p float64) {
		evt, err := newEnvelope(EvtTick, "BTCUSDT", TickPayload{Symbol: "BTCUSDT", Price: p})
		require.NoError(t, err)
		require.NoError(t, w.Offer(evt))
	}

	offer(1)
	<-ticks.started // worker is now busy with 1
	offer(2)        // fills the queue
	offer(3)        // parked
	offer(4)        // replaces 3

	for i := 0; i < 3; i++ {
		ticks.release <- struct{}{}
		if i < 2 {
			<-ticks.started
		}
	}

	require.Eventually(t, func() bool { return len(ticks.seen()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{1, 2, 4}, ticks.seen())
	assert.Equal(t, int64(1), w.Stats().Coalesced)

	// 7 is parked behind 6, then 8 finds room once 6 is taken: 7 must not
	// run after 8.
	offer(5)
	<-ticks.started // busy with 5
	offer(6)        // fills the queue
	offer(7)        // parked
	ticks.release <- struct{}{}
	<-ticks.started // busy with 6, queue empty
	offer(8)        // queued, drops 7
	ticks.release <- struct{}{}
	<-ticks.started
	ticks.release <- struct{}{}

	require.Eventually(t, func() bool { return len(ticks.seen()) == 6 }, time.Second, 5*time.Millisecond)
	seen := ticks.seen()
	assert.Equal(t, []float64{1, 2, 4, 5, 6, 8}, seen)
	assert.Equal(t, float64(8), seen[len(seen)-1])
	assert.Equal(t, int64(2), w.Stats().Coalesced)
}

func TestParkedTickRunsWhenQueueAlreadyDrained(t *testing.T) {
	ticks := &recordingTicks{}
	w := newWorker("BTCUSDT", ticks, nil, workerOptions{queueSize: 1})

	for _, p := range []float64{1, 2} {
		evt, err := newEnvelope(EvtTick, "BTCUSDT", TickPayload{Symbol: "BTCUSDT", Price: p})
		require.NoError(t, err)
		require.NoError(t, w.Offer(evt))
	}
	// the loop took 1 and went idle before 2 was parked
	<-w.msgCh

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool { return len(ticks.seen()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{2}, ticks.seen())
}

func TestFillsArePersistedBeforeHandling(t *testing.T) {
	store, err := NewFileEventStore(filepath.Join(t.TempDir(), "events", "log.jsonl"))
	require.NoError(t, err)
	defer store.Close()

	fills := &MockFills{}
	done := make(chan struct{})
	fill := exchange.Fill{OrderID: "o-1", Symbol: "BTCUSDT", Side: "buy", Quantity: 1, Price: 21, Cost: 21}
	fills.On("OnFill", mock.Anything, fill).Run(func(mock.Arguments) {
		events, err := store.LoadAll()
		assert.NoError(t, err)
		assert.Len(t, events, 1)
		close(done)
	}).Return(nil).Once()

	d := NewDispatcher(Config{}, &recordingTicks{}, fills, WithEventStore(store))
	d.AddSymbol("BTCUSDT")
	startDispatcher(t, d)

	d.SubmitFill(fill)
	d.SubmitFill(exchange.Fill{OrderID: "o-2", Symbol: "ETHUSDT"}) // unknown, dropped

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fill not handled")
	}
	// ticks are not persisted
	require.NoError(t, d.SyncTick(context.Background(), "BTCUSDT", 5))

	events, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EvtFill, events[0].Type)
	assert.Equal(t, "BTCUSDT", events[0].Symbol)
	fills.AssertExpectations(t)
}

func TestAddSymbolAfterStart(t *testing.T) {
	ticks := &recordingTicks{}
	d := NewDispatcher(Config{}, ticks, nil)
	startDispatcher(t, d)

	d.AddSymbol("solusdt")
	d.AddSymbol("SOLUSDT")
	require.NoError(t, d.SyncTick(context.Background(), "SOLUSDT", 100))
	assert.Equal(t, []float64{100}, ticks.seen())
	assert.Len(t, d.Symbols(), 1)
}

func TestFileEventStoreSkipsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	s, err := NewFileEventStore(path)
	require.NoError(t, err)

	evt, err := newEnvelope(EvtFill, "BTCUSDT", exchange.Fill{OrderID: "a"})
	require.NoError(t, err)
	require.NoError(t, s.Append(evt))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"ID":"b","Ty`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = NewFileEventStore(path)
	require.NoError(t, err)
	defer s.Close()
	events, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)
}
