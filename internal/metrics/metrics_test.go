package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"dvsmart-go/internal/dvs"
)

func TestPrometheus_Lifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePhase(dvs.PhaseReorganize, dvs.OutcomeSucceeded)
	m.ObservePhase(dvs.PhaseReorganize, dvs.OutcomeSucceeded)
	m.ObservePhase(dvs.PhaseIndex, dvs.OutcomeFailed)
	m.ObserveReorgDuration(40 * time.Millisecond)
	m.ObserveJob(dvs.JobCompleted, 10*time.Second, 9.5)

	if got := testutil.ToFloat64(m.phaseTotal.WithLabelValues("reorganize", "succeeded")); got != 2 {
		t.Errorf("reorganize/succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.phaseTotal.WithLabelValues("index", "failed")); got != 1 {
		t.Errorf("index/failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobsTotal.WithLabelValues("COMPLETED")); got != 1 {
		t.Errorf("jobs COMPLETED = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.filesPerSecond); got != 9.5 {
		t.Errorf("files per second = %v, want 9.5", got)
	}
}

func TestPrometheus_SetFileCounts(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetFileCounts(map[dvs.ReorgStatus]int64{dvs.ReorgPending: 3, dvs.ReorgUnset: 1})
	m.SetFileCounts(map[dvs.ReorgStatus]int64{dvs.ReorgSuccess: 5})

	if got := testutil.ToFloat64(m.filesByStatus.WithLabelValues("SUCCESS")); got != 5 {
		t.Errorf("SUCCESS = %v, want 5", got)
	}
	if n := testutil.CollectAndCount(m.filesByStatus); n != 1 {
		t.Errorf("series = %d, want 1 after reset", n)
	}
}

func TestPrometheus_MiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+id, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/files/{id}", "404")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "dvsmart_http_requests_total") {
		t.Error("/metrics does not expose dvsmart_http_requests_total")
	}
}
