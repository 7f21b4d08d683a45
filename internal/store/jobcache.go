package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"dvsmart-go/internal/dvs"
)

// JobCache wraps a RecordStore and caches finalized job execution records.
// A finalized record never changes again, so entries cannot go stale; the
// TTL only bounds memory held for old jobs.
type JobCache struct {
	Store
	cache *expirable.LRU[string, *dvs.JobExecutionRecord]
}

var _ Store = (*JobCache)(nil)

// NewJobCache returns inner wrapped with a cache of at most size finalized
// jobs, each kept for ttl.
func NewJobCache(inner Store, size int, ttl time.Duration) *JobCache {
	return &JobCache{
		Store: inner,
		cache: expirable.NewLRU[string, *dvs.JobExecutionRecord](size, nil, ttl),
	}
}

func (c *JobCache) GetJobExecution(ctx context.Context, auditID string) (*dvs.JobExecutionRecord, error) {
	if job, ok := c.cache.Get(auditID); ok {
		return job.Clone(), nil
	}

	job, err := c.Store.GetJobExecution(ctx, auditID)
	if err != nil || job == nil {
		return job, err
	}
	if job.Status.IsFinal() {
		c.cache.Add(auditID, job.Clone())
	}
	return job, nil
}

func (c *JobCache) UpdateJobExecution(ctx context.Context, auditID string, patch dvs.JobPatch) error {
	c.cache.Remove(auditID)
	return c.Store.UpdateJobExecution(ctx, auditID, patch)
}

// Len returns the number of cached jobs.
func (c *JobCache) Len() int {
	return c.cache.Len()
}
