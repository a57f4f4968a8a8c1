package optimizer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/models"
)

func sampleReturns() models.ReturnMatrix {
	d := date.MustParse("2024-01-02")
	return models.ReturnMatrix{
		Dates:   []date.Date{d, d.AddDays(1), d.AddDays(2), d.AddDays(3)},
		Tickers: []string{"A", "B", "C"},
		Values: [][]float64{
			{0.01, 0.02, -0.01},
			{0.00, -0.01, 0.02},
			{0.02, 0.01, 0.00},
			{-0.01, 0.00, 0.01},
		},
	}
}

func TestEqualWeight_Optimize(t *testing.T) {
	w, m, err := EqualWeight{}.Optimize(context.Background(), sampleReturns(), 0.02)
	require.NoError(t, err)

	require.Len(t, w, 3)
	assert.True(t, w.Normalized())
	for _, v := range w {
		assert.InDelta(t, 1.0/3, v, 1e-12)
	}
	assert.Greater(t, m.Volatility, 0.0)
	assert.InDelta(t, (m.ExpectedReturn-0.02)/m.Volatility, m.SharpeRatio, 1e-12)
}

func TestEqualWeight_Empty(t *testing.T) {
	_, _, err := EqualWeight{}.Optimize(context.Background(), models.ReturnMatrix{}, 0.02)
	assert.ErrorIs(t, err, ErrNoReturns)
}

func TestEqualWeight_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := EqualWeight{}.Optimize(ctx, sampleReturns(), 0.02)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPortfolioReturns(t *testing.T) {
	r := PortfolioReturns(sampleReturns(), models.Weights{"A": 0.5, "B": 0.5})
	require.Len(t, r, 4)
	assert.InDelta(t, 0.015, r[0], 1e-12)
	assert.InDelta(t, -0.005, r[1], 1e-12)
}

func TestPerformance_FlatSeries(t *testing.T) {
	flat := models.ReturnMatrix{
		Dates:   []date.Date{date.MustParse("2024-01-02"), date.MustParse("2024-01-03")},
		Tickers: []string{"A"},
		Values:  [][]float64{{0.001}, {0.001}},
	}
	m := Performance(flat, models.Weights{"A": 1}, 0.02)
	assert.InDelta(t, 0.252, m.ExpectedReturn, 1e-9)
	assert.Equal(t, 0.0, m.Volatility)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.False(t, math.IsNaN(m.SharpeRatio))
}
