package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kjannette/hrp-allocator/internal/httputil"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
)

type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewSender(webhookURL, botName string) *Sender {
	if botName == "" {
		botName = "HRPAllocator"
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
	}
}

// Send logs msg and posts it to the webhook when one is configured.
// Delivery failures are logged, never returned.
func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.botName, msg)
	logger.Info("[NOTIFY] %s", formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		logger.Error("[NOTIFY] marshal: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		logger.Error("[NOTIFY] Failed to send notification after retries: %v", err)
		return
	}
	resp.Body.Close()
}

// AllocationStored announces a new allocation, largest weights first.
func (s *Sender) AllocationStored(a *models.Allocation) {
	if a == nil {
		return
	}
	tickers := a.Weights.Tickers()
	// largest first, ties by ticker
	sort.SliceStable(tickers, func(i, j int) bool {
		return a.Weights[tickers[i]] > a.Weights[tickers[j]]
	})
	parts := make([]string, len(tickers))
	for i, t := range tickers {
		parts[i] = fmt.Sprintf("%s %.1f%%", t, a.Weights[t]*100)
	}
	s.Send(fmt.Sprintf("New allocation %s | %s | exp. return %.1f%% vol %.1f%% Sharpe %.2f",
		a.Date, strings.Join(parts, ", "),
		a.Metrics.ExpectedReturn*100, a.Metrics.Volatility*100, a.Metrics.SharpeRatio))
}

func (s *Sender) RebalanceFailed(reason string) {
	s.Send("Rebalance failed: " + reason)
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
