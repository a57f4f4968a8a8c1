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
	"github.com/shopspring/decimal"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageClient downloads daily adjusted series from Alpha Vantage.
// The free tier allows five requests a minute, so requests are paced.
type AlphaVantageClient struct {
	apiKey     string
	baseURL    string
	pace       time.Duration
	httpClient *http.Client
	retry      httputil.RetryConfig
}

type AlphaVantageOptions struct {
	BaseURL string
	Pace    time.Duration // delay between two ticker requests; negative disables
	Retry   httputil.RetryConfig
}

func NewAlphaVantageClient(apiKey string, opts AlphaVantageOptions) *AlphaVantageClient {
	base := opts.BaseURL
	if base == "" {
		base = alphaVantageBaseURL
	}
	pace := opts.Pace
	if pace == 0 {
		pace = 15 * time.Second
	}
	if pace < 0 {
		pace = 0
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			MaxDelay:    20 * time.Second,
		}
	}
	return &AlphaVantageClient{
		apiKey:     apiKey,
		baseURL:    base,
		pace:       pace,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		retry:      retry,
	}
}

type avDailyResponse struct {
	Series      map[string]map[string]string `json:"Time Series (Daily)"`
	Note        string                       `json:"Note"`
	Information string                       `json:"Information"`
	Error       string                       `json:"Error Message"`
}

// Fetch returns the adjusted closes of tickers between start and end, inclusive.
func (c *AlphaVantageClient) Fetch(ctx context.Context, tickers []string, start, end date.Date) (models.PriceMatrix, error) {
	if c.apiKey == "" {
		return models.PriceMatrix{}, fmt.Errorf("alphavantage: %w", ErrMissingAPIKey)
	}
	logger.Info("[ALPHAVANTAGE] Fetching %d tickers %s..%s", len(tickers), start, end)

	first := true
	return fetchMatrix(ctx, "ALPHAVANTAGE", tickers, start, end, func(ctx context.Context, ticker string, start, end date.Date) ([]models.PricePoint, error) {
		if !first && c.pace > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pace):
			}
		}
		first = false
		return c.daily(ctx, ticker, start, end)
	})
}

func (c *AlphaVantageClient) daily(ctx context.Context, ticker string, start, end date.Date) ([]models.PricePoint, error) {
	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
	q.Set("symbol", ticker)
	q.Set("outputsize", "full")
	q.Set("apikey", c.apiKey)

	var body avDailyResponse
	if err := httputil.GetJSON(ctx, c.httpClient, c.retry, c.baseURL+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if msg := firstNonEmpty(body.Error, body.Note, body.Information); msg != "" && len(body.Series) == 0 {
		return nil, fmt.Errorf("alphavantage: %s", msg)
	}
	return parseAlphaVantageSeries(ticker, body.Series, start, end)
}

// parseAlphaVantageSeries converts the string-encoded daily series into points.
func parseAlphaVantageSeries(ticker string, series map[string]map[string]string, start, end date.Date) ([]models.PricePoint, error) {
	out := make([]models.PricePoint, 0, len(series))
	for day, fields := range series {
		d, err := date.Parse(day)
		if err != nil {
			return nil, err
		}
		if !inWindow(d, start, end) {
			continue
		}
		raw, ok := fields["5. adjusted close"]
		if !ok {
			raw = fields["4. close"]
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s on %s: bad price %q: %w", ticker, day, raw, err)
		}
		if !price.IsPositive() {
			continue
		}
		out = append(out, models.PricePoint{Date: d, Ticker: ticker, Price: price.InexactFloat64()})
	}
	if len(out) == 0 {
		return nil, ErrEmptyResponse
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
