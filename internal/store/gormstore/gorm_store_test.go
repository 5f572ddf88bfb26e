package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ratchet/internal/position"
	"ratchet/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "state", "ratchet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewGormStoreRequiresPath(t *testing.T) {
	_, err := NewGormStore("  ")
	assert.Error(t, err)
}

func TestSnapshotUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadSnapshot(ctx, "btcusdt")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := position.Snapshot{
		Symbol:           "BTCUSDT",
		RunState:         position.BuyRun.String(),
		AveragePrice:     20,
		TotalCost:        20,
		Quantity:         1,
		Funding:          -119.1,
		SafetyBands:      2,
		UpperBound:       position.Unset,
		LowerBound:       position.Unset,
		TrailingOffset:   1,
		BuyOrderLimit:    21,
		SellOrderLimit:   position.Unset,
		TradeFraction:    1,
		ActiveBuyOrderID: "b-1",
		MarginProtection: 1,
		EmergencyOrders:  []position.EmergencyOrder{
			{OrderID: "e-1", Side: position.SideSell, PricePerUnit: 12.5, Size: 0.5},
		},
		UpdatedAt:        time.UnixMilli(1_700_000_000_000),
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, ok, err := s.LoadSnapshot(ctx, "btcusdt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	snap.Quantity = 2
	snap.EmergencyOrders = nil
	snap.ActiveBuyOrderID = ""
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	all, err := s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2.0, all[0].Quantity)
	assert.Empty(t, all[0].EmergencyOrders)
	assert.Empty(t, all[0].ActiveBuyOrderID)
}

func TestEventLogAppendAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AppendEvent(ctx, store.EventRecord{
			ID:        id,
			Type:      "FILL",
			Payload:   []byte(`{"order_id":"` + id + `"}`),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Symbol:    "ethusdt",
		}))
	}
	// duplicate ids are ignored
	require.NoError(t, s.AppendEvent(ctx, store.EventRecord{ID: "a", Type: "FILL", Payload: []byte(`{}`), CreatedAt: base}))

	all, err := s.LoadEvents(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "ETHUSDT", all[0].Symbol)
	assert.JSONEq(t, `{"order_id":"a"}`, string(all[0].Payload))

	later, err := s.LoadEvents(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, later, 2)
	assert.Equal(t, "b", later[0].ID)
}
