package updater

import (
	"context"
	"time"

	"github.com/kjannette/hrp-allocator/internal/ingest"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
	"github.com/kjannette/hrp-allocator/internal/rebalance"
)

type Ingester interface {
	Ingest(ctx context.Context, tickers []string, lookbackYears int) ingest.Result
}

type Rebalancer interface {
	Run(ctx context.Context) (rebalance.Result, error)
	Force(ctx context.Context) (rebalance.Result, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Recorder receives run outcomes; *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveIngest(outcome string, inserted int)
	ObserveRebalance(status string)
	SetAllocation(day time.Time, weights map[string]float64)
	ObserveDuration(d time.Duration)
}

type Notifier interface {
	AllocationStored(a *models.Allocation)
	RebalanceFailed(reason string)
}

type Config struct {
	Tickers       []string
	LookbackYears int
}

// Report is the outcome of one ingest and rebalance cycle.
type Report struct {
	StartedAt time.Time        `json:"started_at"`
	Duration  string           `json:"duration"`
	Ingest    IngestSummary    `json:"ingest"`
	Rebalance rebalance.Result `json:"rebalance"`
}

type IngestSummary struct {
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped,omitempty"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type Updater struct {
	ingester   Ingester
	rebalancer Rebalancer
	cache      Invalidator
	recorder   Recorder
	notifier   Notifier
	cfg        Config
}

// New wires the cycle. cache, recorder and notifier may be nil.
func New(ing Ingester, reb Rebalancer, cache Invalidator, rec Recorder, notifier Notifier, cfg Config) *Updater {
	return &Updater{
		ingester:   ing,
		rebalancer: reb,
		cache:      cache,
		recorder:   rec,
		notifier:   notifier,
		cfg:        cfg,
	}
}

// Update ingests the lookback window then rebalances if the latest
// allocation is stale. A failed ingest does not stop the rebalance check.
// The error is non-nil only for storage failures.
func (u *Updater) Update(ctx context.Context) (Report, error) {
	return u.run(ctx, false)
}

// ForceUpdate is Update with the freshness check bypassed.
func (u *Updater) ForceUpdate(ctx context.Context) (Report, error) {
	return u.run(ctx, true)
}

func (u *Updater) run(ctx context.Context, force bool) (Report, error) {
	start := time.Now()
	rep := Report{StartedAt: start.UTC()}
	logger.Info("[UPDATE] Starting update cycle (force=%t)", force)

	ing := u.ingester.Ingest(ctx, u.cfg.Tickers, u.cfg.LookbackYears)
	rep.Ingest = summarize(ing)
	u.observeIngest(ing)
	if ing.Err != nil {
		rep.Duration = time.Since(start).String()
		return rep, ing.Err
	}
	if !ing.OK {
		logger.Warn("[UPDATE] Ingestion failed (%s), continuing to rebalance check", ing.Reason)
	}

	var (
		res rebalance.Result
		err error
	)
	if force {
		res, err = u.rebalancer.Force(ctx)
	} else {
		res, err = u.rebalancer.Run(ctx)
	}
	rep.Rebalance = res
	if u.recorder != nil {
		u.recorder.ObserveRebalance(string(res.Status))
	}

	if ing.Inserted > 0 || res.Status == rebalance.StatusRebalanced {
		u.invalidate(ctx)
	}

	switch res.Status {
	case rebalance.StatusRebalanced:
		if u.recorder != nil && res.Allocation != nil {
			u.recorder.SetAllocation(res.Allocation.Date.Time(), res.Allocation.Weights)
		}
		if u.notifier != nil {
			u.notifier.AllocationStored(res.Allocation)
		}
	case rebalance.StatusFailed:
		if u.notifier != nil {
			u.notifier.RebalanceFailed(res.Reason)
		}
	}

	elapsed := time.Since(start)
	rep.Duration = elapsed.String()
	if u.recorder != nil {
		u.recorder.ObserveDuration(elapsed)
	}
	logger.Info("[UPDATE] Cycle finished in %s: ingest ok=%t inserted=%d, rebalance %s",
		elapsed.Round(time.Millisecond), ing.OK, ing.Inserted, res.Status)
	return rep, err
}

func (u *Updater) observeIngest(r ingest.Result) {
	if u.recorder == nil {
		return
	}
	outcome := "ok"
	switch {
	case r.Err != nil:
		outcome = "storage_failure"
	case r.Reason == ingest.ReasonNoData:
		outcome = "no_data"
	case !r.OK:
		outcome = "feed_failure"
	}
	u.recorder.ObserveIngest(outcome, r.Inserted)
}

func (u *Updater) invalidate(ctx context.Context) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Invalidate(ctx); err != nil {
		logger.Warn("[UPDATE] Cache invalidation failed: %v", err)
	}
}

func summarize(r ingest.Result) IngestSummary {
	return IngestSummary{
		OK:       r.OK,
		Reason:   r.Reason,
		Fetched:  r.Fetched,
		Inserted: r.Inserted,
		Skipped:  r.Skipped,
		Start:    r.Start.String(),
		End:      r.End.String(),
	}
}
