package api

import (
	"context"
	"net/http"

	"github.com/kjannette/hrp-allocator/internal/cache"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
	"github.com/kjannette/hrp-allocator/internal/updater"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "HRP Optimizer API"})
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached models.Allocation
	if s.deps.Cache.Get(ctx, cache.KeyAllocation, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	alloc, err := s.deps.Allocations.GetLatestAllocation(ctx)
	if err != nil {
		logger.Error("[API] Error fetching latest allocation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch allocation")
		return
	}
	if alloc == nil {
		writeError(w, http.StatusNotFound, "No allocation found")
		return
	}

	s.deps.Cache.Set(ctx, cache.KeyAllocation, alloc)
	writeJSON(w, http.StatusOK, alloc)
}

// handleAllocationHistory returns allocations oldest first; ?limit=N keeps
// the N most recent.
func (s *Server) handleAllocationHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r, maxQueryLimit)

	var history []models.Allocation
	if !s.deps.Cache.Get(ctx, cache.KeyAllocations, &history) {
		var err error
		history, err = s.deps.Allocations.GetAllocationHistory(ctx)
		if err != nil {
			logger.Error("[API] Error fetching allocation history: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to fetch allocation history")
			return
		}
		if history == nil {
			history = []models.Allocation{}
		}
		s.deps.Cache.Set(ctx, cache.KeyAllocations, history)
	}

	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	writeJSON(w, http.StatusOK, history)
}

type rebalanceResponse struct {
	Status string         `json:"status"`
	Report updater.Report `json:"report"`
}

// handleRebalance runs a full update synchronously. ?force=true recomputes
// today's allocation even when the latest one is still fresh.
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	// The run outlives a disconnected client but not the update timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.timeout)
	defer cancel()

	run := s.deps.Updater.Update
	if r.URL.Query().Get("force") == "true" {
		run = s.deps.Updater.ForceUpdate
	}

	logger.Info("[API] Manual rebalance triggered from %s", r.RemoteAddr)
	rep, err := run(ctx)
	if err != nil {
		logger.Error("[API] Manual rebalance failed: %v", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, rebalanceResponse{Status: "triggered", Report: rep})
}
