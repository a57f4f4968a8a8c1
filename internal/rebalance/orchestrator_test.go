package rebalance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/models"
	"github.com/kjannette/hrp-allocator/internal/optimizer"
	"github.com/kjannette/hrp-allocator/internal/risk"
)

// ---------- fakes ----------

type memPrices struct {
	mu     sync.Mutex
	points []models.PricePoint
	err    error
	start  *date.Date
}

func (m *memPrices) QueryPrices(_ context.Context, start *date.Date) (models.PriceMatrix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = start
	if m.err != nil {
		return models.PriceMatrix{}, m.err
	}
	var pts []models.PricePoint
	for _, p := range m.points {
		if start == nil || !p.Date.Before(*start) {
			pts = append(pts, p)
		}
	}
	return models.NewPriceMatrix(pts), nil
}

type memAllocations struct {
	mu      sync.Mutex
	byDate  map[date.Date]models.Allocation
	getErr  error
	putErr  error
	upserts int
}

func (m *memAllocations) GetLatestAllocation(context.Context) (*models.Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var latest *models.Allocation
	for _, a := range m.byDate {
		if latest == nil || a.Date.After(latest.Date) {
			a := a
			latest = &a
		}
	}
	return latest, nil
}

func (m *memAllocations) UpsertAllocation(_ context.Context, day date.Date, w models.Weights, mt models.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if m.byDate == nil {
		m.byDate = map[date.Date]models.Allocation{}
	}
	m.byDate[day] = models.Allocation{Date: day, Weights: w, Metrics: mt}
	m.upserts++
	return nil
}

type optimizerFunc func(ctx context.Context, r models.ReturnMatrix, rf float64) (models.Weights, models.Metrics, error)

func (f optimizerFunc) Optimize(ctx context.Context, r models.ReturnMatrix, rf float64) (models.Weights, models.Metrics, error) {
	return f(ctx, r, rf)
}

// ---------- helpers ----------

var today = date.MustParse("2024-01-10")

func clockAt(d date.Date) func() time.Time {
	return func() time.Time { return d.Time().Add(22 * time.Hour) }
}

// pricesABSPY covers {A, B, SPY} for 2024-01-01..2024-01-10.
func pricesABSPY() []models.PricePoint {
	var pts []models.PricePoint
	start := date.MustParse("2024-01-01")
	for i := 0; i < 10; i++ {
		d := start.AddDays(i)
		pts = append(pts,
			models.PricePoint{Date: d, Ticker: "A", Price: 100 + float64(i)},
			models.PricePoint{Date: d, Ticker: "B", Price: 50 + float64(i%3)},
			models.PricePoint{Date: d, Ticker: "SPY", Price: 470 + float64(i)/2},
		)
	}
	return pts
}

func newOrch(prices *memPrices, allocs *memAllocations, opt Optimizer, now date.Date) *Orchestrator {
	universe := []string{"A", "B"}
	return NewOrchestrator(prices, allocs, opt, risk.NewGuardian(risk.Limits{Universe: universe}), Config{
		Universe:     universe,
		CadenceDays:  7,
		RiskFreeRate: 0.02,
		Now:          clockAt(now),
	})
}

// ---------- Decide ----------

func TestDecide_NoAllocationIsStale(t *testing.T) {
	o := newOrch(&memPrices{}, &memAllocations{}, optimizer.EqualWeight{}, today)
	d, err := o.Decide(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, Stale, d.State)
	assert.Equal(t, "initial rebalance", d.Reason)
}

func TestDecide_CadenceBoundary(t *testing.T) {
	last := date.MustParse("2024-01-01")
	allocs := &memAllocations{byDate: map[date.Date]models.Allocation{last: {Date: last}}}
	o := newOrch(&memPrices{}, allocs, optimizer.EqualWeight{}, today)

	cases := []struct {
		today date.Date
		want  State
		days  int
	}{
		{last, Fresh, 0},
		{last.AddDays(6), Fresh, 6},
		{last.AddDays(7), Stale, 7},
		{last.AddDays(30), Stale, 30},
	}
	for _, c := range cases {
		d, err := o.Decide(context.Background(), c.today)
		require.NoError(t, err)
		assert.Equal(t, c.want, d.State, "today=%s", c.today)
		assert.Equal(t, c.days, d.DaysSince)
	}
}

func TestDecide_StorageError(t *testing.T) {
	o := newOrch(&memPrices{}, &memAllocations{getErr: errors.New("db down")}, optimizer.EqualWeight{}, today)
	_, err := o.Decide(context.Background(), today)
	assert.Error(t, err)
}

// ---------- Run ----------

func TestRun_EndToEnd(t *testing.T) {
	allocs := &memAllocations{}
	o := newOrch(&memPrices{points: pricesABSPY()}, allocs, optimizer.EqualWeight{}, today)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRebalanced, res.Status, res.Reason)
	assert.NotEmpty(t, res.RunID)

	stored := allocs.byDate[today]
	assert.Equal(t, []string{"A", "B"}, stored.Weights.Tickers(), "benchmark excluded")
	assert.InDelta(t, 1.0, stored.Weights.Sum(), models.WeightTolerance)
	assert.Equal(t, today, res.Allocation.Date)

	// Same day: fresh, nothing written.
	res, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, res.Status)
	assert.Equal(t, 1, allocs.upserts)

	// Same day, forced: overwrites the single record for today.
	res, err = o.Force(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRebalanced, res.Status)
	assert.Equal(t, 2, allocs.upserts)
	assert.Len(t, allocs.byDate, 1)
}

func TestRun_OptimizesFullStoredWindow(t *testing.T) {
	// Three years of history; the optimizer must see all of it.
	first := date.MustParse("2021-01-11")
	var pts []models.PricePoint
	days := 0
	for d := first; !d.After(today); d = d.AddDays(1) {
		pts = append(pts,
			models.PricePoint{Date: d, Ticker: "A", Price: 100 + float64(days%17)},
			models.PricePoint{Date: d, Ticker: "B", Price: 50 + float64(days%5)},
		)
		days++
	}
	prices := &memPrices{points: pts}

	var rows int
	opt := optimizerFunc(func(_ context.Context, r models.ReturnMatrix, _ float64) (models.Weights, models.Metrics, error) {
		rows = len(r.Dates)
		return models.Weights{"A": 0.5, "B": 0.5}, models.Metrics{}, nil
	})
	o := newOrch(prices, &memAllocations{}, opt, today)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRebalanced, res.Status)
	assert.Nil(t, prices.start, "query must not be bounded")
	assert.Equal(t, days-1, rows)
}

func TestRun_InsufficientData(t *testing.T) {
	cases := map[string][]models.PricePoint{
		"empty store": nil,
		"one asset": {
			{Date: date.MustParse("2024-01-01"), Ticker: "A", Price: 1},
			{Date: date.MustParse("2024-01-02"), Ticker: "A", Price: 2},
		},
		"single row": {
			{Date: date.MustParse("2024-01-01"), Ticker: "A", Price: 1},
			{Date: date.MustParse("2024-01-01"), Ticker: "B", Price: 2},
		},
	}
	for name, pts := range cases {
		t.Run(name, func(t *testing.T) {
			allocs := &memAllocations{}
			o := newOrch(&memPrices{points: pts}, allocs, optimizer.EqualWeight{}, today)
			res, err := o.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, StatusSkipped, res.Status)
			assert.Contains(t, res.Reason, "insufficient data")
			assert.Zero(t, allocs.upserts)
		})
	}
}

func TestRun_OptimizerFailures(t *testing.T) {
	cases := map[string]optimizerFunc{
		"error": func(context.Context, models.ReturnMatrix, float64) (models.Weights, models.Metrics, error) {
			return nil, models.Metrics{}, errors.New("singular matrix")
		},
		"panic": func(context.Context, models.ReturnMatrix, float64) (models.Weights, models.Metrics, error) {
			panic("index out of range")
		},
		"unnormalized": func(context.Context, models.ReturnMatrix, float64) (models.Weights, models.Metrics, error) {
			return models.Weights{"A": 0.7, "B": 0.7}, models.Metrics{}, nil
		},
		"negative": func(context.Context, models.ReturnMatrix, float64) (models.Weights, models.Metrics, error) {
			return models.Weights{"A": 1.5, "B": -0.5}, models.Metrics{}, nil
		},
		"negative within sum tolerance": func(context.Context, models.ReturnMatrix, float64) (models.Weights, models.Metrics, error) {
			return models.Weights{"A": -5e-7, "B": 1.0000005}, models.Metrics{}, nil
		},
		"benchmark weight": func(context.Context, models.ReturnMatrix, float64) (models.Weights, models.Metrics, error) {
			return models.Weights{"A": 0.5, "SPY": 0.5}, models.Metrics{}, nil
		},
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			allocs := &memAllocations{}
			o := newOrch(&memPrices{points: pricesABSPY()}, allocs, opt, today)
			res, err := o.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, res.Status)
			assert.Contains(t, res.Reason, "optimizer failure")
			assert.Zero(t, allocs.upserts)
		})
	}
}

func TestRun_PassesUniverseReturnsAndRiskFree(t *testing.T) {
	var got models.ReturnMatrix
	var rf float64
	opt := optimizerFunc(func(_ context.Context, r models.ReturnMatrix, riskFree float64) (models.Weights, models.Metrics, error) {
		got, rf = r, riskFree
		return models.Weights{"A": 0.25, "B": 0.75}, models.Metrics{SharpeRatio: 1.1}, nil
	})
	o := newOrch(&memPrices{points: pricesABSPY()}, &memAllocations{}, opt, today)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRebalanced, res.Status)
	assert.Equal(t, []string{"A", "B"}, got.Tickers)
	assert.Len(t, got.Dates, 9, "first row is consumed by the return computation")
	assert.Equal(t, 0.02, rf)
	assert.Equal(t, 1.1, res.Allocation.Metrics.SharpeRatio)
}

func TestRun_StorageErrors(t *testing.T) {
	dbErr := errors.New("connection reset")

	t.Run("latest", func(t *testing.T) {
		o := newOrch(&memPrices{points: pricesABSPY()}, &memAllocations{getErr: dbErr}, optimizer.EqualWeight{}, today)
		res, err := o.Run(context.Background())
		assert.ErrorIs(t, err, dbErr)
		assert.Equal(t, StatusError, res.Status)
	})
	t.Run("prices", func(t *testing.T) {
		o := newOrch(&memPrices{err: dbErr}, &memAllocations{}, optimizer.EqualWeight{}, today)
		_, err := o.Run(context.Background())
		assert.ErrorIs(t, err, dbErr)
	})
	t.Run("upsert", func(t *testing.T) {
		o := newOrch(&memPrices{points: pricesABSPY()}, &memAllocations{putErr: dbErr}, optimizer.EqualWeight{}, today)
		_, err := o.Run(context.Background())
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestRun_ConcurrentSameDayLeavesOneRecord(t *testing.T) {
	allocs := &memAllocations{}
	o := newOrch(&memPrices{points: pricesABSPY()}, allocs, optimizer.EqualWeight{}, today)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Force(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, allocs.byDate, 1)
}
