package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/kjannette/hrp-allocator/internal/backtest"
	"github.com/kjannette/hrp-allocator/internal/cache"
	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
)

var insufficientData = map[string]string{"status": "insufficient_data"}

// handleHistory returns every tracked ticker rebased to 100 on its first
// observation. ?from=YYYY-MM-DD limits the window.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var start *date.Date
	if from := r.URL.Query().Get("from"); from != "" {
		if !validateDate(from) {
			writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
			return
		}
		d := date.MustParse(from)
		start = &d
	}

	if start == nil {
		var raw []map[string]any
		if s.deps.Cache.Get(ctx, cache.KeyHistory, &raw) {
			writeJSON(w, http.StatusOK, raw)
			return
		}
	}

	prices, err := s.deps.Prices.QueryPrices(ctx, start)
	if err != nil {
		logger.Error("[API] Error fetching price history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch price history")
		return
	}
	if prices.Empty() {
		writeJSON(w, http.StatusOK, map[string][]any{"data": {}})
		return
	}

	rows := backtest.Rebase(prices)
	if start == nil {
		s.deps.Cache.Set(ctx, cache.KeyHistory, rows)
	}
	writeJSON(w, http.StatusOK, rows)
}

type performanceResponse struct {
	Status     string              `json:"status"`
	Allocation *models.Allocation  `json:"allocation"`
	Projection backtest.Projection `json:"projection"`
}

// handlePerformance projects the latest weights over the stored history
// against the benchmark. When prices or an allocation are missing it runs
// one update first.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached performanceResponse
	if s.deps.Cache.Get(ctx, cache.KeyPerformance, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	alloc, prices, err := s.performanceInputs(ctx)
	if err == nil && (alloc == nil || prices.Empty()) {
		s.initialize(ctx)
		alloc, prices, err = s.performanceInputs(ctx)
	}
	if err != nil {
		logger.Error("[API] Error loading performance inputs: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load performance data")
		return
	}
	if alloc == nil || prices.Empty() {
		writeJSON(w, http.StatusOK, insufficientData)
		return
	}

	proj, err := backtest.Project(prices, alloc.Weights, s.deps.Benchmark)
	if errors.Is(err, backtest.ErrInsufficientData) {
		logger.Warn("[API] Performance projection unavailable: %v", err)
		writeJSON(w, http.StatusOK, insufficientData)
		return
	}

	resp := performanceResponse{Status: "ok", Allocation: alloc, Projection: proj}
	s.deps.Cache.Set(ctx, cache.KeyPerformance, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) performanceInputs(ctx context.Context) (*models.Allocation, models.PriceMatrix, error) {
	alloc, err := s.deps.Allocations.GetLatestAllocation(ctx)
	if err != nil {
		return nil, models.PriceMatrix{}, err
	}
	prices, err := s.deps.Prices.QueryPrices(ctx, nil)
	if err != nil {
		return nil, models.PriceMatrix{}, err
	}
	return alloc, prices, nil
}

// initialize runs a single update shared by all concurrent callers.
func (s *Server) initialize(ctx context.Context) {
	_, err, shared := s.init.Do("update", func() (any, error) {
		logger.Info("[API] No data yet, running initial update")
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.deps.Updater.Update(runCtx)
	})
	if err != nil {
		logger.Error("[API] Initial update failed (shared=%t): %v", shared, err)
	}
}

type correlationResponse struct {
	Status string `json:"status"`
	backtest.CorrelationMatrix
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached correlationResponse
	if s.deps.Cache.Get(ctx, cache.KeyCorrelation, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	prices, err := s.deps.Prices.QueryPrices(ctx, nil)
	if err != nil {
		logger.Error("[API] Error fetching prices for correlation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}

	corr, err := backtest.Correlation(prices, s.deps.Universe)
	if errors.Is(err, backtest.ErrInsufficientData) {
		writeJSON(w, http.StatusOK, insufficientData)
		return
	}

	resp := correlationResponse{Status: "ok", CorrelationMatrix: corr}
	s.deps.Cache.Set(ctx, cache.KeyCorrelation, resp)
	writeJSON(w, http.StatusOK, resp)
}
