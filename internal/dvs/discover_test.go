package dvs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dvsmart-go/internal/dvs"
)

func TestDiscover_InsertsPendingRecords(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		e1 := h.addFile("/in/a.pdf", pdfContent)
		h.addFile("/in/sub/b.txt", []byte("hello"))
		h.addFile("/elsewhere/c.txt", []byte("outside root"))

		res, err := h.engine.Discover(context.Background(), h.job, "/in")
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if res.Seen != 2 || res.Inserted != 2 {
			t.Errorf("result = %+v, want 2 seen and inserted", res)
		}

		rec := h.get(t, dvs.Fingerprint("/in", "a.pdf", e1.Size, e1.ModTime))
		if rec.IndexingStatus != dvs.IndexingPending || rec.ReorgStatus != dvs.ReorgUnset {
			t.Errorf("statuses = %s/%s, want PENDING/unset", rec.IndexingStatus, rec.ReorgStatus)
		}
		if rec.DiscoveredByJob != h.job.JobExecutionID {
			t.Errorf("DiscoveredByJob = %d, want %d", rec.DiscoveredByJob, h.job.JobExecutionID)
		}
		if !rec.DiscoveredAt.Equal(h.clock.Now()) {
			t.Errorf("DiscoveredAt = %v, want %v", rec.DiscoveredAt, h.clock.Now())
		}
		if !rec.LastModifiedAt.Equal(e1.ModTime) {
			t.Errorf("LastModifiedAt = %v, want %v", rec.LastModifiedAt, e1.ModTime)
		}
	})
}

func TestDiscover_Idempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		e := h.addFile("/in/a.pdf", pdfContent)
		ctx := context.Background()

		if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
			t.Fatalf("first Discover() error = %v", err)
		}
		before := h.get(t, dvs.NewFileRecord(e, 0, time.Time{}).ID)

		h.clock.Advance(time.Hour)
		res, err := h.engine.Discover(ctx, h.job, "/in")
		if err != nil {
			t.Fatalf("second Discover() error = %v", err)
		}
		if res.Inserted != 0 || res.Unchanged != 1 {
			t.Errorf("result = %+v, want 1 unchanged", res)
		}

		after := h.get(t, before.ID)
		if after.Version != before.Version || !after.DiscoveredAt.Equal(before.DiscoveredAt) {
			t.Error("rediscovery modified the record")
		}

		counts, err := s.CountFilesByReorgStatus(ctx)
		if err != nil {
			t.Fatalf("CountFilesByReorgStatus() error = %v", err)
		}
		var total int64
		for _, n := range counts {
			total += n
		}
		if total != 1 {
			t.Errorf("record count = %d, want 1", total)
		}
	})
}

func TestDiscover_ModifiedFileIsNewRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		ctx := context.Background()
		h.addFile("/in/a.pdf", pdfContent)
		if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		h.source.AddFile("/in/a.pdf", append(pdfContent, '!'), time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC))
		res, err := h.engine.Discover(ctx, h.job, "/in")
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if res.Inserted != 1 {
			t.Errorf("Inserted = %d, want 1 for a modified file", res.Inserted)
		}
	})
}

func TestDiscover_ListError(t *testing.T) {
	h := newHarness(t, newMemoryStore(t))
	h.source.ListErr = errors.New("share unreachable")
	if _, err := h.engine.Discover(context.Background(), h.job, "/in"); err == nil {
		t.Error("Discover() expected error when listing fails")
	}
}

func TestDiscover_ReappearedFileReturnsToPending(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		ctx := context.Background()
		e := h.addFile("/in/a.pdf", pdfContent)
		id := dvs.NewFileRecord(e, 0, time.Time{}).ID

		h.discoverAndIndex(t)
		if _, err := h.engine.Reorganize(ctx, h.job, 1, 0); err != nil {
			t.Fatalf("Reorganize() error = %v", err)
		}
		if _, err := h.engine.Cleanup(ctx, h.job, 0); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if !h.get(t, id).DeletedFromSource {
			t.Fatal("record not marked deleted after cleanup")
		}

		// The same file version is restored at the source.
		h.source.AddFile(e.FullPath(), pdfContent, e.ModTime)
		res, err := h.engine.Discover(ctx, h.job, "/in")
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if res.Reappeared != 1 {
			t.Errorf("Reappeared = %d, want 1", res.Reappeared)
		}

		rec := h.get(t, id)
		if rec.DeletedFromSource || rec.SourceDeletionAt != nil || rec.DeletedBy != "" {
			t.Errorf("deletion fields not cleared: %+v", rec)
		}
		if rec.ReorgStatus != dvs.ReorgPending {
			t.Errorf("ReorgStatus = %s, want PENDING", rec.ReorgStatus)
		}
		if rec.ReorgCompletedAt != nil {
			t.Error("ReorgCompletedAt not cleared")
		}
		if rec.ReorgAttempts != 1 {
			t.Errorf("ReorgAttempts = %d, want 1 (kept)", rec.ReorgAttempts)
		}
	})
}
