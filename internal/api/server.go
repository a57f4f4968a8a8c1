package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjannette/hrp-allocator/internal/cache"
	"github.com/kjannette/hrp-allocator/internal/date"
	"github.com/kjannette/hrp-allocator/internal/logger"
	"github.com/kjannette/hrp-allocator/internal/models"
	"github.com/kjannette/hrp-allocator/internal/updater"
)

const maxQueryLimit = 1000

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type PriceReader interface {
	QueryPrices(ctx context.Context, start *date.Date) (models.PriceMatrix, error)
	LatestDate(ctx context.Context) (*date.Date, error)
	Tickers(ctx context.Context) ([]string, error)
}

type AllocationReader interface {
	GetLatestAllocation(ctx context.Context) (*models.Allocation, error)
	GetAllocationHistory(ctx context.Context) ([]models.Allocation, error)
}

type Updater interface {
	Update(ctx context.Context) (updater.Report, error)
	ForceUpdate(ctx context.Context) (updater.Report, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Prices      PriceReader
	Allocations AllocationReader
	Updater     Updater
	DB          Pinger
	Cache       *cache.Cache
	Metrics     http.Handler
	Benchmark   string
	Universe    []string
}

type Options struct {
	Port          int
	APIKey        string
	CORSOrigin    string
	UpdateTimeout time.Duration
}

type Server struct {
	deps       Deps
	apiKey     string
	timeout    time.Duration
	init       singleflight.Group
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 5 * time.Minute
	}
	s := &Server{
		deps:    deps,
		apiKey:  opts.APIKey,
		timeout: opts.UpdateTimeout,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)

	// Allocation routes
	mux.HandleFunc("GET /allocation", s.handleAllocation)
	mux.HandleFunc("GET /allocation/history", s.handleAllocationHistory)
	mux.HandleFunc("POST /rebalance", s.handleRebalance)

	// Dashboard routes
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /performance", s.handlePerformance)
	mux.HandleFunc("GET /correlation", s.handleCorrelation)

	// Health and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	s.handler = corsMiddleware(s.authMiddleware(mux), opts.CORSOrigin)

	// Rebalance runs synchronously, so the write timeout covers a full update.
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.UpdateTimeout + 10*time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	logger.Info("[API] REST API server started on http://localhost%s", s.httpServer.Addr)
	logger.Info("[API] Health check: http://localhost%s/health", s.httpServer.Addr)
	if s.apiKey != "" {
		logger.Info("[API] Authentication: enabled (Bearer token)")
	} else {
		logger.Info("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func publicPath(p string) bool {
	return p == "/" || p == "/health" || p == "/metrics"
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || publicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
