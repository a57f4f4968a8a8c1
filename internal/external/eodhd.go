package external

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/httputil"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
)

const eodhdBaseURL = "https://eodhd.com/api"

// EODHDClient downloads end-of-day adjusted closes from eodhd.com.
type EODHDClient struct {
	apiKey     string
	baseURL    string
	exchange   string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

type EODHDOptions struct {
	BaseURL  string
	Exchange string // suffix added to bare tickers, "US" by default
	Retry    httputil.RetryConfig
}

func NewEODHDClient(apiKey string, opts EODHDOptions) *EODHDClient {
	base := opts.BaseURL
	if base == "" {
		base = eodhdBaseURL
	}
	exchange := opts.Exchange
	if exchange == "" {
		exchange = "US"
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		}
	}
	return &EODHDClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(base, "/"),
		exchange:   exchange,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		retry:      retry,
	}
}

// Fetch returns the adjusted closes of tickers between start and end, inclusive.
func (c *EODHDClient) Fetch(ctx context.Context, tickers []string, start, end date.Date) (models.PriceMatrix, error) {
	if c.apiKey == "" {
		return models.PriceMatrix{}, fmt.Errorf("eodhd: %w", ErrMissingAPIKey)
	}
	logger.Info("[EODHD] Fetching %d tickers %s..%s", len(tickers), start, end)
	return fetchMatrix(ctx, "EODHD", tickers, start, end, c.daily)
}

func (c *EODHDClient) symbol(ticker string) string {
	if strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + "." + c.exchange
}

func (c *EODHDClient) daily(ctx context.Context, ticker string, start, end date.Date) ([]models.PricePoint, error) {
	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")
	q.Set("from", start.String())
	q.Set("to", end.String())
	addr := fmt.Sprintf("%s/eod/%s?%s", c.baseURL, url.PathEscape(c.symbol(ticker)), q.Encode())

	var rows []struct {
		Date          date.Date `json:"date"`
		AdjustedClose float64   `json:"adjusted_close"`
	}
	if err := httputil.GetJSON(ctx, c.httpClient, c.retry, addr, &rows); err != nil {
		return nil, err
	}

	out := make([]models.PricePoint, 0, len(rows))
	for _, r := range rows {
		if !inWindow(r.Date, start, end) || r.AdjustedClose <= 0 {
			continue
		}
		out = append(out, models.PricePoint{Date: r.Date, Ticker: ticker, Price: r.AdjustedClose})
	}
	if len(out) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}
