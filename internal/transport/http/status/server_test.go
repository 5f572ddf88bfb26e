package statushttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ratchet/internal/gateway/database"
	"ratchet/internal/position"
	"ratchet/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakePositions map[string]position.Snapshot

func (f fakePositions) Snapshot(symbol string) (position.Snapshot, bool) {
	s, ok := f[symbol]
	return s, ok
}

func (f fakePositions) Snapshots() []position.Snapshot {
	out := make([]position.Snapshot, 0, len(f))
	for _, s := range f {
		out = append(out, s)
	}
	return out
}

type MockTicks struct {
	mock.Mock
}

func (m *MockTicks) SyncTick(ctx context.Context, symbol string, price float64) error {
	return m.Called(ctx, symbol, price).Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) List(ctx context.Context, q database.LedgerQuery) ([]database.LedgerEntry, error) {
	args := m.Called(ctx, q)
	entries, _ := args.Get(0).([]database.LedgerEntry)
	return entries, args.Error(1)
}

func newTestServer(t *testing.T, ticks TickSubmitter, ledger LedgerReader) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Positions: fakePositions{"BTCUSDT": {Symbol: "BTCUSDT", RunState: "BUY_RUN", Funding: 1000}},
		Ticks:     ticks,
		Ledger:    ledger,
		Stats:     func() any { return map[string]int{"workers": 1} },
	})
	require.NoError(t, err)
	return srv
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPositionsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Positions []position.Snapshot `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Positions, 1)

	rec = do(srv, http.MethodGet, "/api/positions/btc-usdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap position.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "BUY_RUN", snap.RunState)

	rec = do(srv, http.MethodGet, "/api/positions/ETHUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodGet, "/api/ledger", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(srv, http.MethodPost, "/api/ticks", `{"symbol":"BTCUSDT","price":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTickEndpoint(t *testing.T) {
	ticks := &MockTicks{}
	ticks.On("SyncTick", mock.Anything, "BTCUSDT", 20100.0).Return(nil).Once()
	ticks.On("SyncTick", mock.Anything, "ETHUSDT", 10.0).Return(fmt.Errorf("x: %w", trader.ErrUnknownSymbol)).Once()
	srv := newTestServer(t, ticks, nil)

	rec := do(srv, http.MethodPost, "/api/ticks", `{"symbol":"btc/usdt","price":20100}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodPost, "/api/ticks", `{"symbol":"ETHUSDT","price":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(srv, http.MethodPost, "/api/ticks", `{"symbol":"BTCUSDT","price":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ticks.AssertExpectations(t)
}

func TestLedgerAndStats(t *testing.T) {
	ledger := &MockLedger{}
	ledger.On("List", mock.Anything, database.LedgerQuery{Symbol: "BTCUSDT", Limit: 5, Offset: 0}).
		Return([]database.LedgerEntry{{ID: 1, Symbol: "BTCUSDT", Side: "buy"}}, nil).Once()
	srv := newTestServer(t, nil, ledger)

	rec := do(srv, http.MethodGet, "/api/ledger?symbol=btcusdt&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"order_id"`)

	rec = do(srv, http.MethodGet, "/api/stats", "")
	assert.JSONEq(t, `{"workers":1}`, rec.Body.String())
	ledger.AssertExpectations(t)
}
