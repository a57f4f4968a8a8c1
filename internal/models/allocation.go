package models

import (
	"math"
	"sort"
	"time"

	"github.com/kjannette/hrp-allocator/internal/date"
)

// WeightTolerance is how far a weight vector may sum away from 1.
const WeightTolerance = 1e-6

// Weights maps a ticker to its share of the portfolio.
type Weights map[string]float64

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// Tickers returns the weighted tickers, sorted.
func (w Weights) Tickers() []string {
	out := make([]string, 0, len(w))
	for t := range w {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Normalized reports whether every weight is non-negative and the total is 1.
func (w Weights) Normalized() bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if math.IsNaN(v) || v < 0 {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= WeightTolerance
}

// Metrics is the optimizer's annualised performance estimate.
type Metrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// Allocation is the target portfolio computed on Date. There is at most one per day.
type Allocation struct {
	Date      date.Date `json:"date"`
	Weights   Weights   `json:"weights"`
	Metrics   Metrics   `json:"metrics"`
	UpdatedAt time.Time `json:"-"`
}
