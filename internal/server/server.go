// Package server exposes the read-side HTTP API: recent readings from
// the hot cache, paginated history from the durable store, per-batch
// statistics, and the operational endpoints.
//
// The server never writes readings; ingestion is the watcher's job.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/logging"
	"github.com/wortwatch/wortwatch/internal/metrics"
	"github.com/wortwatch/wortwatch/internal/query"
	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/stats"
	"github.com/wortwatch/wortwatch/internal/storage"
)

var log = logging.Component("server")

// =============================================================================
// Server
// =============================================================================

// Config wires the server's dependencies.
type Config struct {
	HTTP config.ServerConfig

	// Queries answers the readings endpoints (required).
	Queries *query.Service

	// Stats answers the batch statistics endpoint (required).
	Stats *stats.Service

	// Store is pinged by the readiness endpoint (required).
	Store *storage.TieredStore

	// Metrics instruments request handling (required).
	Metrics *metrics.Metrics

	// Gatherer backs the /metrics endpoint (required).
	Gatherer prometheus.Gatherer
}

// Server is the HTTP read surface.
type Server struct {
	cfg     config.ServerConfig
	queries *query.Service
	stats   *stats.Service
	store   *storage.TieredStore
	metrics *metrics.Metrics

	handler http.Handler
	http    *http.Server
}

// New creates the server with its routes and middleware in place.
func New(cfg Config) *Server {
	s := &Server{
		cfg:     cfg.HTTP,
		queries: cfg.Queries,
		stats:   cfg.Stats,
		store:   cfg.Store,
		metrics: cfg.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/readings/recent", s.handleRecent)
	mux.HandleFunc("GET /api/v1/readings/historical", s.handleHistorical)
	mux.HandleFunc("GET /api/v1/batches", s.handleBatches)
	mux.HandleFunc("GET /api/v1/batches/{batch}/stats", s.handleBatchStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	s.handler = requestID(accessLog(mux))
	s.http = &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration(),
	}
	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	log.Info("http server listening", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("http server stopping")
	return s.http.Shutdown(ctx)
}

// =============================================================================
// Readings
// =============================================================================

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("recent", time.Since(start)) }()

	readings, err := s.queries.Recent(r.Context(), intParam(r, "limit"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if readings == nil {
		readings = []report.SensorReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// historyResponse is the pagination envelope: next and previous are
// opaque continuation tokens, null at the respective end.
type historyResponse struct {
	Count    int64                  `json:"count"`
	Next     *string                `json:"next"`
	Previous *string                `json:"previous"`
	Results  []report.SensorReading `json:"results"`
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("historical", time.Since(start)) }()

	q := r.URL.Query()
	res, err := s.queries.Historical(r.Context(), query.HistoricalRequest{
		Batch:    q.Get("batch"),
		PageSize: intParam(r, "page_size"),
		Token:    q.Get("token"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	results := res.Readings
	if results == nil {
		results = []report.SensorReading{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Count:    res.Count,
		Next:     optional(res.Next),
		Previous: optional(res.Previous),
		Results:  results,
	})
}

// =============================================================================
// Batches
// =============================================================================

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("batches", time.Since(start)) }()

	batches, err := s.queries.Batches(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if batches == nil {
		batches = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"batches": batches})
}

func (s *Server) handleBatchStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("stats", time.Since(start)) }()

	summary, err := s.stats.Summarize(r.Context(), r.PathValue("batch"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// Operational endpoints
// =============================================================================

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// Helpers
// =============================================================================

// intParam returns the named query parameter as a positive int. Absent,
// non-numeric, and non-positive values all yield 0, leaving the
// services to apply their configured defaults.
func intParam(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode failed", "error", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// coded is implemented by every domain error carrying a machine code.
type coded interface {
	Code() string
}

// writeDomainError maps domain error codes to HTTP statuses in one
// place. Unexpected errors become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var c coded
	if errors.As(err, &c) {
		writeError(w, statusForCode(c.Code()), c.Code(), err.Error())
		return
	}
	log.Error("unhandled error in request", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func statusForCode(code string) int {
	switch code {
	case "invalid_page_token", "malformed_report":
		return http.StatusBadRequest
	case "tier_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
