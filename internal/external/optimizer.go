package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/httputil"
	"github.com/kjannette/hrp-allocator/internal/models"
)

// OptimizerClient calls a remote allocation service (the HRP optimizer).
//
// Request:  POST {baseURL}/optimize
//
//	{"tickers": [...], "dates": [...], "returns": [[...]], "risk_free_rate": 0.02}
//
// Response: {"weights": {"AAPL": 0.12, ...},
//
//	"performance": {"expected_return": .., "volatility": .., "sharpe_ratio": ..}}
type OptimizerClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewOptimizerClient(baseURL string) *OptimizerClient {
	return &OptimizerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   2 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

type optimizeRequest struct {
	Tickers      []string    `json:"tickers"`
	Dates        []date.Date `json:"dates"`
	Returns      [][]float64 `json:"returns"`
	RiskFreeRate float64     `json:"risk_free_rate"`
}

type optimizeResponse struct {
	Weights     models.Weights `json:"weights"`
	Performance models.Metrics `json:"performance"`
	Error       string         `json:"error,omitempty"`
}

func (c *OptimizerClient) Optimize(ctx context.Context, returns models.ReturnMatrix, riskFreeRate float64) (models.Weights, models.Metrics, error) {
	body, err := json.Marshal(optimizeRequest{
		Tickers:      returns.Tickers,
		Dates:        returns.Dates,
		Returns:      returns.Values,
		RiskFreeRate: riskFreeRate,
	})
	if err != nil {
		return nil, models.Metrics{}, fmt.Errorf("marshal: %w", err)
	}

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/optimize", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, models.Metrics{}, fmt.Errorf("optimizer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, models.Metrics{}, fmt.Errorf("optimizer returned status %d: %s", resp.StatusCode, string(msg))
	}

	var out optimizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, models.Metrics{}, fmt.Errorf("decode: %w", err)
	}
	if out.Error != "" {
		return nil, models.Metrics{}, fmt.Errorf("optimizer: %s", out.Error)
	}
	if len(out.Weights) == 0 {
		return nil, models.Metrics{}, fmt.Errorf("optimizer returned no weights")
	}
	return out.Weights, out.Performance, nil
}
