package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dvsmart-go/internal/dvs"
)

// MemoryStore is an in-memory dvs.RecordStore for tests and dry runs.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.Mutex
	files   map[string]*dvs.FileRecord
	jobs    map[string]*dvs.JobExecutionRecord
	jobIDs  map[int64]string
	nextSeq int64
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:  make(map[string]*dvs.FileRecord),
		jobs:   make(map[string]*dvs.JobExecutionRecord),
		jobIDs: make(map[int64]string),
	}
}

func (m *MemoryStore) check(ctx context.Context) error {
	if m.closed {
		return fmt.Errorf("memory store is closed")
	}
	return ctx.Err()
}

func (m *MemoryStore) InsertFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	if _, ok := m.files[rec.ID]; ok {
		return fmt.Errorf("inserting file %s: %w", rec.ID, dvs.ErrDuplicate)
	}
	m.nextSeq++
	rec.Seq = m.nextSeq
	rec.Version = 1
	m.files[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) UpsertFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	if existing, ok := m.files[rec.ID]; ok {
		rec.Seq = existing.Seq
		rec.Version = existing.Version + 1
	} else {
		m.nextSeq++
		rec.Seq = m.nextSeq
		rec.Version = 1
	}
	m.files[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) UpdateFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	existing, ok := m.files[rec.ID]
	if !ok {
		return fmt.Errorf("updating file %s: %w", rec.ID, dvs.ErrNotFound)
	}
	if existing.Version != rec.Version {
		return fmt.Errorf("updating file %s at version %d: %w", rec.ID, rec.Version, dvs.ErrConflict)
	}
	rec.Seq = existing.Seq
	rec.Version++
	m.files[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) GetFile(ctx context.Context, id string) (*dvs.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	rec, ok := m.files[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) FindFilesByReorgStatus(ctx context.Context, status dvs.ReorgStatus, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return m.findBySeq(ctx, cursor, limit, func(r *dvs.FileRecord) bool {
		return r.ReorgStatus == status
	})
}

func (m *MemoryStore) FindFilesByIndexingStatus(ctx context.Context, status dvs.IndexingStatus, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return m.findBySeq(ctx, cursor, limit, func(r *dvs.FileRecord) bool {
		return r.IndexingStatus == status
	})
}

func (m *MemoryStore) FindCleanupCandidates(ctx context.Context, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return m.findBySeq(ctx, cursor, limit, func(r *dvs.FileRecord) bool {
		return r.ReorgStatus == dvs.ReorgSuccess && !r.DeletedFromSource
	})
}

func (m *MemoryStore) FindRetryableFailed(ctx context.Context, maxAttempts int, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return m.findBySeq(ctx, cursor, limit, func(r *dvs.FileRecord) bool {
		return r.ReorgStatus == dvs.ReorgFailed && r.ReorgAttempts < maxAttempts
	})
}

func (m *MemoryStore) FindStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*dvs.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	var result []*dvs.FileRecord
	for _, r := range m.files {
		if r.ReorgStatus == dvs.ReorgProcessing && r.ReorgLastAttemptAt != nil && r.ReorgLastAttemptAt.Before(olderThan) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].ReorgLastAttemptAt, result[j].ReorgLastAttemptAt
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return result[i].Seq < result[j].Seq
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) findBySeq(ctx context.Context, cursor int64, limit int, match func(*dvs.FileRecord) bool) ([]*dvs.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	var result []*dvs.FileRecord
	for _, r := range m.files {
		if r.Seq > cursor && match(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) CountFilesByReorgStatus(ctx context.Context) (map[dvs.ReorgStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	counts := make(map[dvs.ReorgStatus]int64)
	for _, r := range m.files {
		counts[r.ReorgStatus]++
	}
	return counts, nil
}

func (m *MemoryStore) NextJobExecutionID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}

	var maxID int64
	for id := range m.jobIDs {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1, nil
}

func (m *MemoryStore) RecordJobExecution(ctx context.Context, job *dvs.JobExecutionRecord) error {
	if err := job.Counters.Validate(); err != nil {
		return fmt.Errorf("recording job %s: %w", job.AuditID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	if _, ok := m.jobs[job.AuditID]; ok {
		return fmt.Errorf("recording job %s: %w", job.AuditID, dvs.ErrDuplicate)
	}
	if _, ok := m.jobIDs[job.JobExecutionID]; ok {
		return fmt.Errorf("recording job execution %d: %w", job.JobExecutionID, dvs.ErrDuplicate)
	}
	job.Version = 1
	m.jobs[job.AuditID] = job.Clone()
	m.jobIDs[job.JobExecutionID] = job.AuditID
	return nil
}

func (m *MemoryStore) UpdateJobExecution(ctx context.Context, auditID string, patch dvs.JobPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}

	job, ok := m.jobs[auditID]
	if !ok {
		return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrNotFound)
	}
	if job.Status.IsFinal() {
		return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrJobFinalized)
	}

	updated := job.Clone()
	updated.Apply(patch)
	if err := updated.Counters.Validate(); err != nil {
		return fmt.Errorf("updating job %s: %w", auditID, err)
	}
	updated.Version++
	m.jobs[auditID] = updated
	return nil
}

func (m *MemoryStore) GetJobExecution(ctx context.Context, auditID string) (*dvs.JobExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	job, ok := m.jobs[auditID]
	if !ok {
		return nil, nil
	}
	return job.Clone(), nil
}

func (m *MemoryStore) ListJobExecutions(ctx context.Context, limit int) ([]*dvs.JobExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}

	result := make([]*dvs.JobExecutionRecord, 0, len(m.jobs))
	for _, job := range m.jobs {
		result = append(result, job.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JobExecutionID > result[j].JobExecutionID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(ctx)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CheckMigrations always succeeds; there is no schema.
func (m *MemoryStore) CheckMigrations() error { return nil }

// Migrate is a no-op.
func (m *MemoryStore) Migrate() error { return nil }
