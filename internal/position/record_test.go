package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	t.Run("empty symbol", func(t *testing.T) {
		_, err := New(Params{Symbol: "  ", Funding: 100})
		assert.ErrorIs(t, err, ErrEmptySymbol)
	})

	t.Run("no capital", func(t *testing.T) {
		_, err := New(Params{Symbol: "btcusdt"})
		assert.ErrorIs(t, err, ErrNoCapital)
	})

	t.Run("defaults are coerced", func(t *testing.T) {
		r, err := New(Params{Symbol: " ethusdt ", Funding: 100, TrailingOffset: -3, TradeFraction: 2})
		require.NoError(t, err)
		assert.Equal(t, "ETHUSDT", r.Symbol())
		assert.Equal(t, 1.0, r.TrailingOffset())
		assert.Equal(t, 1.0, r.MarginProtection())
		assert.Equal(t, 1, r.SafetyBands())
		assert.Equal(t, 1.0, r.TradeFraction())
		assert.Equal(t, TriggerRun, r.RunState())
		assert.Equal(t, Unset, r.UpperBound())
		assert.Equal(t, Unset, r.LowerBound())
		assert.Equal(t, Unset, r.BuyOrderLimit())
		assert.Equal(t, Unset, r.SellOrderLimit())
		assert.Equal(t, NoOrder, r.ActiveBuyOrderID())
	})

	t.Run("fraction modulo and abs", func(t *testing.T) {
		r, err := New(Params{Symbol: "x", Quantity: 1, TradeFraction: -1.25, TrailingOffset: 0.5})
		require.NoError(t, err)
		assert.InDelta(t, 0.25, r.TradeFraction(), 1e-12)
		assert.Equal(t, 0.5, r.MarginProtection())
	})
}

func TestRecord_EditorIssuedOnce(t *testing.T) {
	r, err := New(Params{Symbol: "BTC", Funding: 10})
	require.NoError(t, err)

	ed, err := r.Editor()
	require.NoError(t, err)
	require.NotNil(t, ed)
	assert.Same(t, r, ed.Record())

	_, err = r.Editor()
	assert.ErrorIs(t, err, ErrEditorIssued)
}

func TestEditor_EmergencyOrders(t *testing.T) {
	r, _ := New(Params{Symbol: "BTC", Funding: -10, Quantity: 1})
	ed, _ := r.Editor()

	ed.AppendEmergencyOrder(EmergencyOrder{OrderID: "a", Side: SideSell, PricePerUnit: 12.5, Size: 1})
	ed.AppendEmergencyOrder(EmergencyOrder{OrderID: "b", Side: SideSell, PricePerUnit: 11, Size: 1})

	got := r.EmergencyOrders()
	got[0].OrderID = "mutated"
	_, ok := r.FindEmergencyOrder("a")
	assert.True(t, ok, "accessor must return a copy")

	_, ok = r.HasEmergencyAt(SideSell, 12.500000000001)
	assert.True(t, ok)
	_, ok = r.HasEmergencyAt(SideBuy, 12.5)
	assert.False(t, ok)

	assert.True(t, ed.RemoveEmergencyOrder("a"))
	assert.False(t, ed.RemoveEmergencyOrder("a"))
	assert.Equal(t, 1, r.EmergencyOrderCount())

	ed.ClearEmergencyOrders()
	assert.False(t, r.HasEmergencyOrders())
}

func TestEditor_RestoreRequiresSameSymbol(t *testing.T) {
	r, _ := New(Params{Symbol: "BTC", Funding: 10})
	ed, _ := r.Editor()

	other, _ := New(Params{Symbol: "ETH", Funding: 5})
	assert.ErrorIs(t, ed.Restore(other.Snapshot()), ErrSymbolMismatch)

	src, _ := New(Params{Symbol: "btc", Funding: 42, Quantity: 3, TrailingOffset: 0.2})
	srcEd, _ := src.Editor()
	srcEd.SeedAveragePrice(7)
	srcEd.SetRunState(SellRun)
	srcEd.SetStopLimit(SideSell, 6.8)
	srcEd.SetActiveOrderID(SideSell, "s-1")

	require.NoError(t, ed.Restore(src.Snapshot()))
	assert.Equal(t, 42.0, r.Funding())
	assert.Equal(t, 3.0, r.Quantity())
	assert.Equal(t, 7.0, r.AveragePrice())
	assert.Equal(t, 21.0, r.TotalCost())
	assert.Equal(t, SellRun, r.RunState())
	assert.Equal(t, 6.8, r.SellOrderLimit())
	assert.Equal(t, "s-1", r.ActiveSellOrderID())

	_, err := r.Editor()
	assert.ErrorIs(t, err, ErrEditorIssued, "restore keeps the capability issued")
}

func TestSnapshot_RoundTripThroughFromSnapshot(t *testing.T) {
	r, _ := New(Params{Symbol: "SOL", Funding: -50, Quantity: 4, TrailingOffset: 0.3, SafetyBands: 3})
	ed, _ := r.Editor()
	ed.SeedAveragePrice(20)
	ed.SetBounds(20.3, 19.7)
	ed.AppendEmergencyOrder(EmergencyOrder{OrderID: "e1", Side: SideSell, PricePerUnit: 16.9, Size: 4.0 / 3})

	back, err := FromSnapshot(r.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, r.Quantity(), back.Quantity())
	assert.Equal(t, r.UpperBound(), back.UpperBound())
	assert.Equal(t, r.EmergencyOrders(), back.EmergencyOrders())
	assert.Equal(t, 3, back.SafetyBands())

	_, err = back.Editor()
	assert.NoError(t, err)
}

func TestClone_IsIsolated(t *testing.T) {
	r, _ := New(Params{Symbol: "BTC", Funding: 100, Quantity: 1, TrailingOffset: 0.1})
	ed, _ := r.Editor()
	ed.SeedAveragePrice(30)
	ed.SetRunState(BuyRun)
	ed.SetStopLimit(SideBuy, 25.1)
	ed.SetActiveOrderID(SideBuy, "b-1")
	ed.AppendEmergencyOrder(EmergencyOrder{OrderID: "e", Side: SideSell, PricePerUnit: 1, Size: 1})

	c, ced := r.Clone()
	assert.Equal(t, r.Snapshot().Symbol, c.Symbol())
	assert.Equal(t, BuyRun, c.RunState())
	assert.Equal(t, 25.1, c.BuyOrderLimit())
	assert.Equal(t, "b-1", c.ActiveBuyOrderID())
	assert.Equal(t, r.TotalCost(), c.TotalCost())

	ced.ApplyBuy(Execution{Quantity: 5, Price: 25.1})
	ced.RemoveEmergencyOrder("e")

	assert.Equal(t, 1.0, r.Quantity())
	assert.Equal(t, 100.0, r.Funding())
	assert.Equal(t, 30.0, r.AveragePrice())
	assert.Equal(t, 1, r.EmergencyOrderCount())

	_, err := c.Editor()
	assert.ErrorIs(t, err, ErrEditorIssued)
}

func TestRunStateParse(t *testing.T) {
	for _, s := range []RunState{TriggerRun, BuyRun, SellRun} {
		assert.Equal(t, s, ParseRunState(s.String()))
	}
	assert.Equal(t, TriggerRun, ParseRunState("garbage"))
}
