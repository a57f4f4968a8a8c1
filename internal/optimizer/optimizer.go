// Package optimizer holds the in-process allocation strategy used when no
// remote optimizer is configured, and the portfolio statistics shared by both.
package optimizer

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kjannette/hrp-allocator/internal/models"
)

// TradingDays annualises daily statistics.
const TradingDays = 252

var ErrNoReturns = errors.New("optimizer: empty return matrix")

// EqualWeight assigns 1/n to every column of the return matrix.
type EqualWeight struct{}

func (EqualWeight) Optimize(ctx context.Context, returns models.ReturnMatrix, riskFreeRate float64) (models.Weights, models.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.Metrics{}, err
	}
	if returns.Empty() {
		return nil, models.Metrics{}, ErrNoReturns
	}

	n := len(returns.Tickers)
	w := make(models.Weights, n)
	for _, t := range returns.Tickers {
		w[t] = 1 / float64(n)
	}
	return w, Performance(returns, w, riskFreeRate), nil
}

// Performance computes annualised expected return, volatility and Sharpe
// ratio of the portfolio holding w constant over returns. Tickers absent
// from w carry zero weight.
func Performance(returns models.ReturnMatrix, w models.Weights, riskFreeRate float64) models.Metrics {
	series := PortfolioReturns(returns, w)
	if len(series) == 0 {
		return models.Metrics{}
	}

	mean, std := stat.MeanStdDev(series, nil)
	if len(series) < 2 || math.IsNaN(std) {
		std = 0
	}
	ret := mean * TradingDays
	vol := std * math.Sqrt(TradingDays)

	m := models.Metrics{ExpectedReturn: ret, Volatility: vol}
	if vol > 0 {
		m.SharpeRatio = (ret - riskFreeRate) / vol
	}
	return m
}

// PortfolioReturns is the per-period weighted sum of asset returns.
func PortfolioReturns(returns models.ReturnMatrix, w models.Weights) []float64 {
	weights := make([]float64, len(returns.Tickers))
	for j, t := range returns.Tickers {
		weights[j] = w[t]
	}
	out := make([]float64, len(returns.Values))
	for i, row := range returns.Values {
		out[i] = floats.Dot(row, weights)
	}
	return out
}
