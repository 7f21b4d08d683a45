package store

import (
	"context"
	"testing"
	"time"

	"dvsmart-go/internal/dvs"
)

// countingStore counts GetJobExecution calls that reach the wrapped store.
type countingStore struct {
	Store
	gets int
}

func (c *countingStore) GetJobExecution(ctx context.Context, auditID string) (*dvs.JobExecutionRecord, error) {
	c.gets++
	return c.Store.GetJobExecution(ctx, auditID)
}

func TestJobCache_CachesOnlyFinalJobs(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: NewMemoryStore()}
	cache := NewJobCache(inner, 8, time.Minute)

	if err := cache.RecordJobExecution(ctx, newTestJob("audit-1", 1)); err != nil {
		t.Fatalf("RecordJobExecution() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.GetJobExecution(ctx, "audit-1"); err != nil {
			t.Fatalf("GetJobExecution() error = %v", err)
		}
	}
	if inner.gets != 2 || cache.Len() != 0 {
		t.Errorf("running job: inner gets = %d, cached = %d; want 2, 0", inner.gets, cache.Len())
	}

	status := dvs.JobCompleted
	if err := cache.UpdateJobExecution(ctx, "audit-1", dvs.JobPatch{Status: &status}); err != nil {
		t.Fatalf("UpdateJobExecution() error = %v", err)
	}

	inner.gets = 0
	for i := 0; i < 3; i++ {
		job, err := cache.GetJobExecution(ctx, "audit-1")
		if err != nil || job == nil {
			t.Fatalf("GetJobExecution() = %v, %v", job, err)
		}
		if job.Status != dvs.JobCompleted {
			t.Errorf("Status = %s, want COMPLETED", job.Status)
		}
	}
	if inner.gets != 1 || cache.Len() != 1 {
		t.Errorf("final job: inner gets = %d, cached = %d; want 1, 1", inner.gets, cache.Len())
	}
}

func TestJobCache_MissingJob(t *testing.T) {
	cache := NewJobCache(NewMemoryStore(), 8, time.Minute)
	job, err := cache.GetJobExecution(context.Background(), "missing")
	if err != nil || job != nil {
		t.Errorf("GetJobExecution(missing) = %v, %v; want nil, nil", job, err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cache.Len())
	}
}

func TestJobCache_Expires(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: NewMemoryStore()}
	cache := NewJobCache(inner, 8, 20*time.Millisecond)
	job := newTestJob("audit-1", 1)
	job.Status = dvs.JobStopped
	if err := cache.RecordJobExecution(ctx, job); err != nil {
		t.Fatalf("RecordJobExecution() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.GetJobExecution(ctx, "audit-1"); err != nil {
			t.Fatalf("GetJobExecution() error = %v", err)
		}
	}
	if inner.gets != 1 {
		t.Fatalf("inner gets before TTL = %d, want 1", inner.gets)
	}

	time.Sleep(100 * time.Millisecond)
	got, err := cache.GetJobExecution(ctx, "audit-1")
	if err != nil || got == nil {
		t.Fatalf("GetJobExecution() after TTL = %v, %v", got, err)
	}
	if inner.gets != 2 {
		t.Errorf("inner gets after TTL = %d, want 2 (expired entry must be reloaded)", inner.gets)
	}
}
