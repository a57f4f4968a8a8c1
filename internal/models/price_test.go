package models

import (
	"math"
	"testing"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(day, ticker string, price float64) PricePoint {
	return PricePoint{Date: date.MustParse(day), Ticker: ticker, Price: price}
}

func TestNewPriceMatrix_PivotsAndSorts(t *testing.T) {
	m := NewPriceMatrix([]PricePoint{
		pt("2024-01-03", "B", 21),
		pt("2024-01-01", "A", 10),
		pt("2024-01-02", "A", 11),
		pt("2024-01-01", "B", 20),
		pt("2024-01-03", "A", 12),
	})

	require.Equal(t, []string{"A", "B"}, m.Tickers)
	require.Len(t, m.Dates, 3)
	assert.Equal(t, date.MustParse("2024-01-01"), m.Dates[0])
	assert.Equal(t, date.MustParse("2024-01-03"), m.Dates[2])
	assert.Equal(t, []float64{10, 20}, m.Values[0])
	assert.Equal(t, 11.0, m.Values[1][0])
	assert.True(t, math.IsNaN(m.Values[1][1]), "B has no price on 01-02")
}

func TestNewPriceMatrix_FirstOccurrenceWins(t *testing.T) {
	m := NewPriceMatrix([]PricePoint{pt("2024-01-01", "A", 10), pt("2024-01-01", "A", 99)})
	assert.Equal(t, 10.0, m.Values[0][0])
}

func TestNewPriceMatrix_Empty(t *testing.T) {
	m := NewPriceMatrix(nil)
	assert.True(t, m.Empty())
	assert.True(t, m.DropNA().Empty())
	assert.True(t, m.Returns().Empty())
	assert.Empty(t, m.Flatten())
}

func TestDropNA(t *testing.T) {
	m := NewPriceMatrix([]PricePoint{
		pt("2024-01-01", "A", 10), pt("2024-01-01", "B", 20),
		pt("2024-01-02", "A", 11),
		pt("2024-01-03", "A", 12), pt("2024-01-03", "B", 22),
	}).DropNA()

	require.Len(t, m.Dates, 2)
	assert.Equal(t, date.MustParse("2024-01-01"), m.Dates[0])
	assert.Equal(t, date.MustParse("2024-01-03"), m.Dates[1])
}

func TestColumns(t *testing.T) {
	m := NewPriceMatrix([]PricePoint{
		pt("2024-01-01", "A", 10), pt("2024-01-01", "B", 20), pt("2024-01-01", "SPY", 400),
	})

	sub := m.Columns("B", "A")
	assert.Equal(t, []string{"B", "A"}, sub.Tickers)
	assert.Equal(t, []float64{20, 10}, sub.Values[0])

	missing := m.Columns("A", "ZZZ")
	assert.True(t, math.IsNaN(missing.Values[0][1]))
	assert.True(t, missing.DropNA().Empty())
}

func TestReturns(t *testing.T) {
	m := NewPriceMatrix([]PricePoint{
		pt("2024-01-01", "A", 100), pt("2024-01-01", "B", 50),
		pt("2024-01-02", "A", 110), pt("2024-01-02", "B", 45),
		pt("2024-01-03", "A", 99), pt("2024-01-03", "B", 45),
	})

	r := m.Returns()
	require.Len(t, r.Dates, 2)
	assert.Equal(t, date.MustParse("2024-01-02"), r.Dates[0])
	assert.InDelta(t, 0.10, r.Values[0][0], 1e-12)
	assert.InDelta(t, -0.10, r.Values[0][1], 1e-12)
	assert.InDelta(t, -0.10, r.Values[1][0], 1e-12)
	assert.InDelta(t, 0.0, r.Values[1][1], 1e-12)
	assert.Len(t, r.Column(1), 2)
}

func TestColumnAndFlatten(t *testing.T) {
	points := []PricePoint{
		pt("2024-01-01", "A", 10),
		pt("2024-01-02", "A", 11), pt("2024-01-02", "B", 21),
	}
	m := NewPriceMatrix(points)

	b := m.Column("B")
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 21.0, b.Values[0])
	assert.Equal(t, 0, m.Column("nope").Len())

	assert.ElementsMatch(t, points, m.Flatten())
}

func TestPricePointValidate(t *testing.T) {
	assert.NoError(t, pt("2024-01-01", "A", 1).Validate())
	assert.Error(t, pt("2024-01-01", "A", 0).Validate())
	assert.Error(t, pt("2024-01-01", "A", -3).Validate())
	assert.Error(t, pt("2024-01-01", "A", math.NaN()).Validate())
	assert.Error(t, pt("2024-01-01", "A", math.Inf(1)).Validate())
	assert.Error(t, pt("2024-01-01", "", 1).Validate())
	assert.Error(t, PricePoint{Ticker: "A", Price: 1}.Validate())
}

func TestWeightsNormalized(t *testing.T) {
	assert.True(t, Weights{"A": 0.25, "B": 0.75}.Normalized())
	assert.True(t, Weights{"A": 0.3333333, "B": 0.3333333, "C": 0.3333334}.Normalized())
	assert.False(t, Weights{"A": 0.5, "B": 0.6}.Normalized())
	assert.False(t, Weights{"A": -0.1, "B": 1.1}.Normalized())
	assert.False(t, Weights{}.Normalized())
	assert.Equal(t, []string{"A", "B"}, Weights{"B": 0.5, "A": 0.5}.Tickers())
}
