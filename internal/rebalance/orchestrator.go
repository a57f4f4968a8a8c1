package rebalance

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
)

type PriceReader interface {
	QueryPrices(ctx context.Context, start *date.Date) (models.PriceMatrix, error)
}

type AllocationStore interface {
	GetLatestAllocation(ctx context.Context) (*models.Allocation, error)
	UpsertAllocation(ctx context.Context, day date.Date, weights models.Weights, metrics models.Metrics) error
}

// Optimizer turns a return matrix into portfolio weights and their metrics.
type Optimizer interface {
	Optimize(ctx context.Context, returns models.ReturnMatrix, riskFreeRate float64) (models.Weights, models.Metrics, error)
}

// WeightChecker rejects weights that must not be persisted.
type WeightChecker interface {
	CheckWeights(w models.Weights) error
}

type Config struct {
	Universe     []string // tracked tickers minus the benchmark
	CadenceDays  int      // default 7
	RiskFreeRate float64  // default 0.02
	Location     *time.Location
	Now          func() time.Time
}

type Orchestrator struct {
	prices      PriceReader
	allocations AllocationStore
	optimizer   Optimizer
	guard       WeightChecker
	cfg         Config
}

func NewOrchestrator(prices PriceReader, allocations AllocationStore, opt Optimizer, guard WeightChecker, cfg Config) *Orchestrator {
	if cfg.CadenceDays <= 0 {
		cfg.CadenceDays = 7
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		prices:      prices,
		allocations: allocations,
		optimizer:   opt,
		guard:       guard,
		cfg:         cfg,
	}
}

// Today is the calendar day in the configured zone.
func (o *Orchestrator) Today() date.Date {
	return date.FromTime(o.cfg.Now().In(o.cfg.Location))
}

// Decide reports whether the latest allocation is older than the cadence.
func (o *Orchestrator) Decide(ctx context.Context, today date.Date) (Decision, error) {
	latest, err := o.allocations.GetLatestAllocation(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("latest allocation: %w", err)
	}
	if latest == nil {
		return Decision{State: Stale, Reason: "initial rebalance", DaysSince: -1}, nil
	}

	d := Decision{State: Fresh, DaysSince: today.DaysSince(latest.Date), Latest: latest.Date}
	if d.DaysSince >= o.cfg.CadenceDays {
		d.State = Stale
	}
	d.Reason = fmt.Sprintf("last allocation %s is %d days old (cadence %d)", latest.Date, d.DaysSince, o.cfg.CadenceDays)
	return d, nil
}

// Run rebalances when the latest allocation is stale. Optimizer problems
// are reported as StatusFailed with a nil error; only storage failures
// return an error.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	return o.run(ctx, false)
}

// Force recomputes today's allocation regardless of its age, replacing any
// record already stored for today.
func (o *Orchestrator) Force(ctx context.Context) (Result, error) {
	return o.run(ctx, true)
}

func (o *Orchestrator) run(ctx context.Context, force bool) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	today := o.Today()

	dec, err := o.Decide(ctx, today)
	if err != nil {
		return o.fail(res, err)
	}
	if force && dec.State == Fresh {
		dec.State = Stale
		dec.Reason = "forced: " + dec.Reason
	}
	res.Decision = dec

	if dec.State == Fresh {
		res.Status = StatusFresh
		res.Reason = dec.Reason
		logger.Info("[REBALANCE] %s Up to date: %s", short(res.RunID), dec.Reason)
		return res, nil
	}
	logger.Info("[REBALANCE] %s Rebalancing for %s: %s", short(res.RunID), today, dec.Reason)

	// Full stored history, not the ingest window.
	prices, err := o.prices.QueryPrices(ctx, nil)
	if err != nil {
		return o.fail(res, fmt.Errorf("query prices: %w", err))
	}

	returns := o.universeReturns(prices)
	if returns.Empty() || len(returns.Tickers) < 2 {
		res.Status = StatusSkipped
		res.Reason = fmt.Sprintf("insufficient data: %d assets, %d return rows", len(returns.Tickers), len(returns.Dates))
		logger.Warn("[REBALANCE] %s Skipped: %s", short(res.RunID), res.Reason)
		return res, nil
	}

	weights, metrics, err := o.optimize(ctx, returns)
	if err == nil && o.guard != nil {
		err = o.guard.CheckWeights(weights)
	}
	if err != nil {
		res.Status = StatusFailed
		res.Reason = fmt.Sprintf("optimizer failure: %v", err)
		logger.Error("[REBALANCE] %s %s", short(res.RunID), res.Reason)
		return res, nil
	}

	if err := o.allocations.UpsertAllocation(ctx, today, weights, metrics); err != nil {
		return o.fail(res, fmt.Errorf("store allocation: %w", err))
	}

	res.Status = StatusRebalanced
	res.Reason = dec.Reason
	res.Allocation = &models.Allocation{Date: today, Weights: weights, Metrics: metrics, UpdatedAt: o.cfg.Now()}
	logger.Info("[REBALANCE] %s Stored allocation for %s over %d assets (%d return rows) | Sharpe %.2f",
		short(res.RunID), today, len(weights), len(returns.Dates), metrics.SharpeRatio)
	return res, nil
}

// universeReturns restricts prices to universe tickers that have data,
// drops incomplete rows and converts to simple returns.
func (o *Orchestrator) universeReturns(prices models.PriceMatrix) models.ReturnMatrix {
	var cols []string
	for _, t := range o.cfg.Universe {
		if prices.Has(t) {
			cols = append(cols, t)
		}
	}
	if len(cols) == 0 {
		return models.ReturnMatrix{}
	}
	return prices.Columns(cols...).DropNA().Returns()
}

// optimize calls the optimizer and converts a panic into an error.
func (o *Orchestrator) optimize(ctx context.Context, returns models.ReturnMatrix) (w models.Weights, m models.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[REBALANCE] Optimizer panic: %v\n%s", r, debug.Stack())
			w, m, err = nil, models.Metrics{}, fmt.Errorf("panic: %v", r)
		}
	}()
	return o.optimizer.Optimize(ctx, returns, o.cfg.RiskFreeRate)
}

func (o *Orchestrator) fail(res Result, err error) (Result, error) {
	res.Status = StatusError
	res.Reason = err.Error()
	logger.Error("[REBALANCE] %s Storage failure: %v", short(res.RunID), err)
	return res, err
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
