package external

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
)

var (
	// ErrEmptyResponse is returned when a feed answered but had no usable prices.
	ErrEmptyResponse = errors.New("feed returned no prices")
	// ErrMissingAPIKey is returned by clients constructed without credentials.
	ErrMissingAPIKey = errors.New("api key not configured")
)

// dailyFetcher downloads one ticker's adjusted closes within [start, end].
type dailyFetcher func(ctx context.Context, ticker string, start, end date.Date) ([]models.PricePoint, error)

// fetchMatrix runs fetch for every ticker and pivots the result. A ticker that
// fails is logged and left missing; the call fails only when every ticker did.
func fetchMatrix(ctx context.Context, source string, tickers []string, start, end date.Date, fetch dailyFetcher) (models.PriceMatrix, error) {
	var (
		points []models.PricePoint
		failed []string
		errs   []error
	)
	for _, t := range tickers {
		if err := ctx.Err(); err != nil {
			return models.PriceMatrix{}, err
		}
		pts, err := fetch(ctx, t, start, end)
		if err != nil {
			logger.Warn("[%s] %s: %v", source, t, err)
			failed = append(failed, t)
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
			continue
		}
		points = append(points, pts...)
	}

	if len(failed) == len(tickers) && len(tickers) > 0 {
		return models.PriceMatrix{}, fmt.Errorf("%s: every ticker failed: %w", source, errors.Join(errs...))
	}
	if len(failed) > 0 {
		logger.Warn("[%s] Missing tickers this run: %s", source, strings.Join(failed, ", "))
	}
	if len(points) == 0 {
		return models.PriceMatrix{}, ErrEmptyResponse
	}
	return models.NewPriceMatrix(points), nil
}

func inWindow(d, start, end date.Date) bool {
	return !d.Before(start) && !d.After(end)
}
