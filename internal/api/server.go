// Package api serves the read-only status HTTP API of a running dvsmart.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/metrics"
)

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 500
)

// Server exposes health, metrics, job execution and file record endpoints.
type Server struct {
	store   dvs.RecordStore
	metrics *metrics.Prometheus
	logger  dvs.Logger
	clock   dvs.Clock
	service string
}

// NewServer creates a Server. metrics may be nil, in which case /metrics is
// not mounted and no request metrics are recorded.
func NewServer(store dvs.RecordStore, m *metrics.Prometheus, logger dvs.Logger, clock dvs.Clock, service string) *Server {
	return &Server{
		store:   store,
		metrics: m,
		logger:  logger,
		clock:   clock,
		service: service,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health/live", s.healthLive)
	r.Get("/health/ready", s.healthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", s.listJobs)
		r.Get("/jobs/{auditId}", s.getJob)
		r.Get("/files/stats", s.fileStats)
		r.Get("/files/{id}", s.getFile)
	})
	return r
}

// NewHTTPServer wraps the router in an http.Server with the given timeouts.
func (s *Server) NewHTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Store     string `json:"store,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (s *Server) healthLive(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   s.service,
		Timestamp: s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Service:   s.service,
		Timestamp: s.clock.Now().Format(time.RFC3339),
		Store:     "ok",
	}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		resp.Status = "fail"
		resp.Store = "fail"
		resp.Message = err.Error()
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", fmt.Sprintf("limit must be a positive integer, got %q", v))
			return
		}
		limit = min(n, maxJobsLimit)
	}

	jobs, err := s.store.ListJobExecutions(r.Context(), limit)
	if err != nil {
		s.internalError(w, "listing job executions", err)
		return
	}

	if jobs == nil {
		jobs = []*dvs.JobExecutionRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": jobs, "count": len(jobs)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "auditId")
	job, err := s.store.GetJobExecution(r.Context(), auditID)
	if err != nil {
		s.internalError(w, "getting job execution", err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", fmt.Sprintf("job execution %s not found", auditID))
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type statsResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

func (s *Server) fileStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountFilesByReorgStatus(r.Context())
	if err != nil {
		s.internalError(w, "counting files", err)
		return
	}
	if s.metrics != nil {
		s.metrics.SetFileCounts(counts)
	}

	resp := statsResponse{Counts: make(map[string]int64, len(counts))}
	for status, n := range counts {
		resp.Counts[status.String()] = n
		resp.Total += n
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetFile(r.Context(), id)
	if err != nil {
		s.internalError(w, "getting file record", err)
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", fmt.Sprintf("file record %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error(action+" failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "INTERNAL", action+" failed")
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	s.writeJSON(w, status, resp)
}

// writeJSON sends data with status. The header is already out when encoding
// fails, so the error can only be logged.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding response failed", "status", status, "error", err)
	}
}
