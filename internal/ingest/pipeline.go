package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/external"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
)

// Feed downloads adjusted closes for a set of tickers over [start, end].
type Feed interface {
	Fetch(ctx context.Context, tickers []string, start, end date.Date) (models.PriceMatrix, error)
}

// PriceStore is the subset of the price repository the pipeline writes to.
type PriceStore interface {
	UpsertPrices(ctx context.Context, points []models.PricePoint) (int, error)
}

// Result describes one ingestion run. A feed problem yields OK=false with a
// Reason and nil Err; a storage failure additionally sets Err.
type Result struct {
	OK       bool
	Reason   string
	Fetched  int
	Inserted int
	Skipped  int // invalid points dropped before writing
	Start    date.Date
	End      date.Date
	Err      error
}

const (
	ReasonFeedFailure    = "feed failure"
	ReasonNoData         = "no data returned"
	ReasonStorageFailure = "storage failure"
)

type Pipeline struct {
	feed  Feed
	store PriceStore
	now   func() time.Time
	loc   *time.Location
}

type Option func(*Pipeline)

// WithClock overrides the wall clock used to compute the fetch window.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLocation sets the time zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) { p.loc = loc }
}

func NewPipeline(feed Feed, store PriceStore, opts ...Option) *Pipeline {
	p := &Pipeline{feed: feed, store: store, now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest re-fetches the whole [today-lookbackYears, today] window and upserts
// it. Existing rows are never overwritten, so overlapping runs are harmless.
func (p *Pipeline) Ingest(ctx context.Context, tickers []string, lookbackYears int) Result {
	end := date.FromTime(p.now().In(p.loc))
	start := end.AddYears(-lookbackYears)
	res := Result{Start: start, End: end}

	logger.Info("[INGEST] Fetching %d tickers from %s to %s", len(tickers), start, end)

	m, err := p.feed.Fetch(ctx, tickers, start, end)
	if errors.Is(err, external.ErrEmptyResponse) || (err == nil && m.Empty()) {
		res.Reason = ReasonNoData
		logger.Warn("[INGEST] Feed returned no data for %v", tickers)
		return res
	}
	if err != nil {
		res.Reason = fmt.Sprintf("%s: %v", ReasonFeedFailure, err)
		logger.Error("[INGEST] Fetch failed: %v", err)
		return res
	}

	points := validPoints(m.Flatten(), &res)
	res.Fetched = len(points) + res.Skipped
	if len(points) == 0 {
		res.Reason = ReasonNoData
		logger.Warn("[INGEST] All %d fetched points were invalid", res.Skipped)
		return res
	}

	inserted, err := p.store.UpsertPrices(ctx, points)
	if err != nil {
		res.Reason = ReasonStorageFailure
		res.Err = fmt.Errorf("upsert prices: %w", err)
		logger.Error("[INGEST] %v", res.Err)
		return res
	}

	res.OK = true
	res.Inserted = inserted
	logger.Info("[INGEST] Stored %d new rows (%d fetched, %d dates x %d tickers)",
		inserted, len(points), len(m.Dates), len(m.Tickers))
	return res
}

func validPoints(points []models.PricePoint, res *Result) []models.PricePoint {
	out := points[:0]
	for _, p := range points {
		if err := p.Validate(); err != nil {
			logger.Warn("[INGEST] Skipping %s %s: %v", p.Ticker, p.Date, err)
			res.Skipped++
			continue
		}
		out = append(out, p)
	}
	return out
}
