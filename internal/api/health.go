package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status     string         `json:"status"`
	Timestamp  string         `json:"timestamp"`
	LatestData string         `json:"latest_data,omitempty"`
	Tickers    []string       `json:"tickers,omitempty"`
	Services   healthServices `json:"services"`
}

type healthServices struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: "connected", Cache: "disabled"},
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(ctx); err != nil {
			resp.Services.Database = "disconnected"
			resp.Status = "degraded"
		}
	}
	if s.deps.Cache.Enabled() {
		resp.Services.Cache = "connected"
		if err := s.deps.Cache.Ping(ctx); err != nil {
			resp.Services.Cache = "disconnected"
		}
	}
	if resp.Services.Database == "connected" {
		if d, err := s.deps.Prices.LatestDate(ctx); err == nil && d != nil {
			resp.LatestData = d.String()
		}
		if tickers, err := s.deps.Prices.Tickers(ctx); err == nil {
			resp.Tickers = tickers
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
