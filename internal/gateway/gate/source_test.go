package gate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ratchet/internal/market"

	gatews "github.com/gateio/gatews/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGateSymbols(t *testing.T) {
	contracts, symbolMap := normalizeGateSymbols([]string{"btcusdt", "BTC/USDT", "eth-usdt", "USDT"})
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, contracts)
	assert.Equal(t, "BTCUSDT", symbolMap["BTC_USDT"])
}

func TestConvertTradeUpdate(t *testing.T) {
	symbolMap := map[string]string{"BTC_USDT": "BTCUSDT"}

	batch := &gatews.UpdateMsg{Result: json.RawMessage(`[
		{"contract":"BTC_USDT","price":"20000","size":1,"create_time_ms":1700000000000},
		{"contract":"BTC_USDT","price":"20001.5","size":-3,"create_time_ms":1700000000500}
	]`)}
	evt, ok := convertTradeUpdate(batch, symbolMap)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", evt.Symbol)
	assert.Equal(t, 20001.5, evt.Price)
	assert.Equal(t, 3.0, evt.Quantity)
	assert.Equal(t, int64(1700000000500), evt.EventTime)

	single := &gatews.UpdateMsg{Result: json.RawMessage(`{"contract":"eth_usdt","price":"10","size":2,"create_time":1700000000}`)}
	evt, ok = convertTradeUpdate(single, symbolMap)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", evt.Symbol)
	assert.Equal(t, int64(1700000000000), evt.EventTime)

	_, ok = convertTradeUpdate(&gatews.UpdateMsg{Result: json.RawMessage(`{"contract":"BTC_USDT","price":"0"}`)}, symbolMap)
	assert.False(t, ok)
	_, ok = convertTradeUpdate(nil, symbolMap)
	assert.False(t, ok)
}

func TestSubscribeTradesRejectsEmpty(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	_, err = src.SubscribeTrades(context.Background(), []string{"???"}, market.SubscribeOptions{})
	assert.Error(t, err)
	assert.NoError(t, src.Close())
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextDelay(time.Second))
	assert.Equal(t, 30*time.Second, nextDelay(20*time.Second))
	assert.Equal(t, time.Second, nextDelay(0))
}
