// Package backtest projects how the current allocation would have performed
// over the stored price history and derives the dashboard views.
package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/models"
	"github.com/kjannette/hrp-allocator/internal/optimizer"
)

// BaseValue is the starting level of every index series.
const BaseValue = 100.0

var ErrInsufficientData = errors.New("insufficient data")

type Point struct {
	Date      date.Date `json:"date"`
	Portfolio float64   `json:"portfolio"`
	Benchmark float64   `json:"benchmark"`
}

type Projection struct {
	Benchmark string  `json:"benchmark"`
	Points    []Point `json:"points"`
}

func (p Projection) Empty() bool { return len(p.Points) == 0 }

// Project compounds the portfolio holding weights constant over the whole
// history, and the benchmark's own returns, into indices starting at
// BaseValue. Only dates present in both series are kept. The weights are
// applied retroactively; this is not a time-varying backtest.
func Project(prices models.PriceMatrix, weights models.Weights, benchmark string) (Projection, error) {
	out := Projection{Benchmark: benchmark}
	if len(weights) == 0 || !prices.Has(benchmark) {
		return out, ErrInsufficientData
	}
	tickers := weights.Tickers()
	for _, t := range tickers {
		if !prices.Has(t) {
			return out, fmt.Errorf("%w: no prices for %s", ErrInsufficientData, t)
		}
	}

	assets := prices.Columns(tickers...).DropNA().Returns()
	bench := prices.Columns(benchmark).DropNA().Returns()
	if assets.Empty() || bench.Empty() {
		return out, ErrInsufficientData
	}

	portfolio := compound(assets.Dates, optimizer.PortfolioReturns(assets, weights))
	benchIndex := compound(bench.Dates, bench.Column(0))

	for _, d := range assets.Dates {
		b, ok := benchIndex[d]
		if !ok {
			continue
		}
		out.Points = append(out.Points, Point{Date: d, Portfolio: portfolio[d], Benchmark: b})
	}
	if len(out.Points) == 0 {
		return out, ErrInsufficientData
	}
	return out, nil
}

func compound(dates []date.Date, returns []float64) map[date.Date]float64 {
	out := make(map[date.Date]float64, len(dates))
	level := BaseValue
	for i, d := range dates {
		level *= 1 + returns[i]
		out[d] = level
	}
	return out
}

// HistoryRow is one date of rebased prices. It encodes as a flat object:
// {"date": "2024-01-02", "AAPL": 101.2, ...}.
type HistoryRow struct {
	Date   date.Date
	Values map[string]float64
}

func (r HistoryRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Values)+1)
	for k, v := range r.Values {
		flat[k] = v
	}
	flat["date"] = r.Date.String()
	return json.Marshal(flat)
}

// Rebase divides every column by its first observed value and scales to
// BaseValue. Missing cells are omitted from the row.
func Rebase(prices models.PriceMatrix) []HistoryRow {
	if prices.Empty() {
		return []HistoryRow{}
	}
	base := make([]float64, len(prices.Tickers))
	for j := range base {
		base[j] = math.NaN()
		for i := range prices.Dates {
			if v := prices.Values[i][j]; !math.IsNaN(v) {
				base[j] = v
				break
			}
		}
	}

	rows := make([]HistoryRow, len(prices.Dates))
	for i, d := range prices.Dates {
		row := HistoryRow{Date: d, Values: make(map[string]float64, len(prices.Tickers))}
		for j, t := range prices.Tickers {
			v := prices.Values[i][j]
			if math.IsNaN(v) || math.IsNaN(base[j]) {
				continue
			}
			row.Values[t] = v * BaseValue / base[j]
		}
		rows[i] = row
	}
	return rows
}

// CorrelationMatrix is the Pearson correlation of daily returns.
type CorrelationMatrix struct {
	Tickers []string    `json:"tickers"`
	Values  [][]float64 `json:"values"`
	Periods int         `json:"periods"`
}

// Correlation computes pairwise return correlations for the tickers that
// have data. Fewer than two assets or two return rows is ErrInsufficientData.
func Correlation(prices models.PriceMatrix, tickers []string) (CorrelationMatrix, error) {
	var cols []string
	for _, t := range tickers {
		if prices.Has(t) {
			cols = append(cols, t)
		}
	}
	if len(cols) < 2 {
		return CorrelationMatrix{}, ErrInsufficientData
	}

	returns := prices.Columns(cols...).DropNA().Returns()
	if len(returns.Dates) < 2 {
		return CorrelationMatrix{}, ErrInsufficientData
	}

	n := len(cols)
	series := make([][]float64, n)
	for j := range cols {
		series[j] = returns.Column(j)
	}
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := stat.Correlation(series[i], series[j], nil)
			if math.IsNaN(c) {
				c = 0
			}
			values[i][j], values[j][i] = c, c
		}
	}
	return CorrelationMatrix{Tickers: cols, Values: values, Periods: len(returns.Dates)}, nil
}
