package position

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEdited(t *testing.T, p Params) (*Record, *Editor) {
	t.Helper()
	r, err := New(p)
	require.NoError(t, err)
	ed, err := r.Editor()
	require.NoError(t, err)
	return r, ed
}

func assertBasisConsistent(t *testing.T, r *Record) {
	t.Helper()
	assert.GreaterOrEqual(t, r.AveragePrice(), 0.0)
	if r.Quantity() != 0 {
		assert.InDelta(t, r.AveragePrice()*math.Abs(r.Quantity()), math.Abs(r.TotalCost()), 1e-9)
	}
}

func TestApplyBuy(t *testing.T) {
	t.Run("adds to long with weighted average", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 1000, Quantity: 10})
		ed.SeedAveragePrice(10)

		ed.ApplyBuy(Execution{Quantity: 10, Price: 20, Commission: 1})

		assert.Equal(t, 20.0, r.Quantity())
		assert.Equal(t, 300.0, r.TotalCost())
		assert.Equal(t, 15.0, r.AveragePrice())
		assert.Equal(t, 799.0, r.Funding())
		assertBasisConsistent(t, r)
	})

	t.Run("partial cover keeps short basis", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 1000, Quantity: -10})
		ed.SeedAveragePrice(10)
		require.Equal(t, -100.0, r.TotalCost())

		ed.ApplyBuy(Execution{Quantity: 4, Price: 8})

		assert.Equal(t, -6.0, r.Quantity())
		assert.Equal(t, 10.0, r.AveragePrice())
		assert.Equal(t, 968.0, r.Funding())
		assertBasisConsistent(t, r)
	})

	t.Run("short flips to long resets at fill price", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 1000, Quantity: -2})
		ed.SeedAveragePrice(10)

		ed.ApplyBuy(Execution{Quantity: 5, Price: 9})

		assert.Equal(t, 3.0, r.Quantity())
		assert.Equal(t, 9.0, r.AveragePrice())
		assert.Equal(t, 27.0, r.TotalCost())
		assert.Equal(t, 955.0, r.Funding())
	})

	t.Run("short covered exactly to flat", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 1000, Quantity: -2})
		ed.SeedAveragePrice(10)

		ed.ApplyBuy(Execution{Quantity: 2, Price: 11})

		assert.Equal(t, 0.0, r.Quantity())
		assert.Equal(t, 11.0, r.AveragePrice())
		assert.Equal(t, 0.0, r.TotalCost())
	})

	t.Run("explicit cost overrides qty times price", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 100})
		ed.ApplyBuy(Execution{Quantity: 2, Price: 10, Cost: 21})
		assert.Equal(t, 79.0, r.Funding())
		assert.Equal(t, 10.5, r.AveragePrice())
	})

	t.Run("zero quantity is ignored", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 100})
		ed.ApplyBuy(Execution{Quantity: 0, Price: 10})
		assert.Equal(t, 100.0, r.Funding())
	})
}

func TestApplySell(t *testing.T) {
	t.Run("reducing long keeps basis", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 0, Quantity: 10})
		ed.SeedAveragePrice(10)

		ed.ApplySell(Execution{Quantity: 4, Price: 12, Commission: 0.5})

		assert.Equal(t, 6.0, r.Quantity())
		assert.Equal(t, 10.0, r.AveragePrice())
		assert.Equal(t, 60.0, r.TotalCost())
		assert.Equal(t, 47.5, r.Funding())
	})

	t.Run("long flips to short resets at fill price", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 0, Quantity: 1})
		ed.SeedAveragePrice(10)

		ed.ApplySell(Execution{Quantity: 3, Price: 12})

		assert.Equal(t, -2.0, r.Quantity())
		assert.Equal(t, 12.0, r.AveragePrice())
		assert.Equal(t, -24.0, r.TotalCost())
		assert.Equal(t, 36.0, r.Funding())
		assertBasisConsistent(t, r)
	})

	t.Run("extending short blends", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 100, Quantity: -10})
		ed.SeedAveragePrice(10)

		ed.ApplySell(Execution{Quantity: 10, Price: 20})

		assert.Equal(t, -20.0, r.Quantity())
		assert.Equal(t, 15.0, r.AveragePrice())
		assertBasisConsistent(t, r)
	})

	t.Run("opening short from flat", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 100})
		ed.ApplySell(Execution{Quantity: 2, Price: 5})
		assert.Equal(t, -2.0, r.Quantity())
		assert.Equal(t, 5.0, r.AveragePrice())
		assert.Equal(t, 110.0, r.Funding())
	})

	t.Run("selling to exact flat zeroes total cost", func(t *testing.T) {
		r, ed := newEdited(t, Params{Symbol: "X", Funding: 0, Quantity: 2})
		ed.SeedAveragePrice(10)
		ed.ApplySell(Execution{Quantity: 2, Price: 10})
		assert.Equal(t, 0.0, r.Quantity())
		assert.Equal(t, 0.0, r.TotalCost())
		assert.Equal(t, 10.0, r.AveragePrice())
	})
}

func TestApply_AveragePriceNeverNegative(t *testing.T) {
	r, ed := newEdited(t, Params{Symbol: "X", Funding: 50, Quantity: 1})
	ed.SeedAveragePrice(10)

	steps := []struct {
		side Side
		qty  float64
		px   float64
	}{
		{SideSell, 3, 11}, {SideSell, 1, 13}, {SideBuy, 1, 9},
		{SideBuy, 6, 8}, {SideSell, 2, 12}, {SideBuy, 0.5, 7},
	}
	for _, s := range steps {
		ed.Apply(s.side, Execution{Quantity: s.qty, Price: s.px})
		assert.GreaterOrEqual(t, r.AveragePrice(), 0.0)
	}
}
