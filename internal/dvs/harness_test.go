package dvs_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/store"
	"dvsmart-go/internal/testutil"
	"dvsmart-go/internal/vault"
)

// harness wires an Engine to in-memory collaborators.
type harness struct {
	store  dvs.RecordStore
	source *testutil.MockSourceFilesystem
	dest   *vault.MemoryDestination
	clock  *testutil.StubClock
	events *recordingPublisher
	engine *dvs.Engine
	job    dvs.JobContext
}

func newHarness(t *testing.T, s dvs.RecordStore, opts ...dvs.Option) *harness {
	t.Helper()
	return newHarnessWithDest(t, s, nil, opts...)
}

// newHarnessWithDest is newHarness writing to dest instead of h.dest.
func newHarnessWithDest(t *testing.T, s dvs.RecordStore, dest dvs.Destination, opts ...dvs.Option) *harness {
	t.Helper()
	h := &harness{
		store:  s,
		source: testutil.NewMockSourceFilesystem(),
		dest:   testutil.NewTestDestination(),
		clock:  testutil.FixedClock(),
		events: &recordingPublisher{},
		job:    dvs.JobContext{AuditID: "audit-1", JobExecutionID: 1, ServiceName: "dvsmart", JobName: "test"},
	}
	opts = append([]dvs.Option{dvs.WithEventPublisher(h.events), dvs.WithActor("tester"), dvs.WithBatchSize(2)}, opts...)
	if dest == nil {
		dest = h.dest
	}
	h.engine = dvs.NewEngine(s, h.source, dest, dvs.NewNopLogger(), h.clock, opts...)
	return h
}

func newMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against the memory store and an in-memory SQLite store.
func forEachStore(t *testing.T, fn func(t *testing.T, s dvs.RecordStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newMemoryStore(t))
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, testutil.NewTestStore(t))
	})
}

var pdfContent = []byte("%PDF-1.7 test document body")

// addFile puts a file on the mock source and returns its entry.
func (h *harness) addFile(path string, content []byte) dvs.FileEntry {
	mtime := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	h.source.AddFile(path, content, mtime)
	return dvs.FileEntry{
		Dir:     filepath.Dir(path),
		Name:    filepath.Base(path),
		Size:    int64(len(content)),
		ModTime: mtime,
	}
}

func (h *harness) get(t *testing.T, id string) *dvs.FileRecord {
	t.Helper()
	rec, err := h.store.GetFile(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFile(%s) error = %v", id, err)
	}
	if rec == nil {
		t.Fatalf("GetFile(%s) = nil", id)
	}
	return rec
}

// discoverAndIndex inserts and indexes every file currently on the source.
func (h *harness) discoverAndIndex(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.engine.Discover(ctx, h.job, "/"); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if _, err := h.engine.Index(ctx, h.job, 0); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dvs.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev dvs.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(t dvs.EventType) []dvs.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dvs.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	phases map[string]int
	jobs   []dvs.JobStatus
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{phases: make(map[string]int)}
}

func (m *recordingMetrics) ObservePhase(phase dvs.Phase, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[string(phase)+"/"+outcome]++
}

func (m *recordingMetrics) ObserveReorgDuration(time.Duration) {}

func (m *recordingMetrics) ObserveJob(status dvs.JobStatus, _ time.Duration, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, status)
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phases[key]
}
