package dvs_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/testutil"
)

func TestIndex_CompletesValidFiles(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		ctx := context.Background()
		e := h.addFile("/in/FACTURA_C001_2024_03.pdf", pdfContent)
		if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		h.clock.Advance(time.Minute)
		res, err := h.engine.Index(ctx, h.job, 0)
		if err != nil {
			t.Fatalf("Index() error = %v", err)
		}
		if res.Indexed != 1 || res.Failed != 0 || res.Deferred != 0 {
			t.Errorf("result = %+v, want 1 indexed", res)
		}

		rec := h.get(t, dvs.NewFileRecord(e, 0, time.Time{}).ID)
		if rec.IndexingStatus != dvs.IndexingCompleted || rec.ReorgStatus != dvs.ReorgPending {
			t.Errorf("statuses = %s/%s, want COMPLETED/PENDING", rec.IndexingStatus, rec.ReorgStatus)
		}
		if rec.IndexedAt == nil || !rec.IndexedAt.Equal(h.clock.Now()) {
			t.Errorf("IndexedAt = %v, want %v", rec.IndexedAt, h.clock.Now())
		}
		if rec.DocumentType != "FACTURA" || rec.ClientCode != "C001" || rec.Year != 2024 || rec.Month != 3 {
			t.Errorf("metadata = %s/%s/%d/%d", rec.DocumentType, rec.ClientCode, rec.Year, rec.Month)
		}
	})
}

func TestIndex_CorruptFileIsSkipped(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		ctx := context.Background()
		e := h.addFile("/in/broken.pdf", []byte("this is not a pdf"))

		h.discoverAndIndex(t)

		rec := h.get(t, dvs.NewFileRecord(e, 0, time.Time{}).ID)
		if rec.IndexingStatus != dvs.IndexingFailed {
			t.Errorf("IndexingStatus = %s, want FAILED", rec.IndexingStatus)
		}
		if rec.IndexingError == "" {
			t.Error("IndexingError is empty")
		}
		if rec.ReorgStatus != dvs.ReorgSkipped {
			t.Errorf("ReorgStatus = %s, want SKIPPED", rec.ReorgStatus)
		}
		if rec.ReorgError != dvs.SkippedReason {
			t.Errorf("ReorgError = %q, want %q", rec.ReorgError, dvs.SkippedReason)
		}
		if rec.ReorgAttempts != 0 {
			t.Errorf("ReorgAttempts = %d, want 0", rec.ReorgAttempts)
		}

		// Never claimed, never transferred, never deleted.
		claimed, err := h.engine.ClaimNext(ctx, h.job)
		if err != nil {
			t.Fatalf("ClaimNext() error = %v", err)
		}
		if claimed != nil {
			t.Errorf("ClaimNext() = %s, want nil", claimed.ID)
		}
		cres, err := h.engine.Cleanup(ctx, h.job, 0)
		if err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
		if cres.Deleted != 0 || !h.source.Exists(e.FullPath()) {
			t.Error("skipped file was deleted from source")
		}
		if len(h.dest.Paths()) != 0 {
			t.Errorf("destination has %v, want nothing", h.dest.Paths())
		}
	})
}

func TestIndex_TransientErrorDefers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s dvs.RecordStore) {
		h := newHarness(t, s)
		ctx := context.Background()
		e := h.addFile("/in/a.pdf", pdfContent)
		id := dvs.NewFileRecord(e, 0, time.Time{}).ID
		if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		h.source.OpenErrs[e.FullPath()] = fmt.Errorf("read %s: %w", e.FullPath(), testutil.TimeoutError{})
		res, err := h.engine.Index(ctx, h.job, 0)
		if err != nil {
			t.Fatalf("Index() error = %v", err)
		}
		if res.Deferred != 1 || res.Failed != 0 {
			t.Errorf("result = %+v, want 1 deferred", res)
		}
		if rec := h.get(t, id); rec.IndexingStatus != dvs.IndexingPending || rec.ReorgStatus != dvs.ReorgUnset {
			t.Errorf("statuses = %s/%s, want PENDING/unset", rec.IndexingStatus, rec.ReorgStatus)
		}

		delete(h.source.OpenErrs, e.FullPath())
		res, err = h.engine.Index(ctx, h.job, 0)
		if err != nil {
			t.Fatalf("Index() error = %v", err)
		}
		if res.Indexed != 1 {
			t.Errorf("Indexed = %d, want 1 on retry", res.Indexed)
		}
	})
}

func TestIndex_MissingSourceFails(t *testing.T) {
	h := newHarness(t, newMemoryStore(t))
	ctx := context.Background()
	e := h.addFile("/in/a.pdf", pdfContent)
	if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if err := h.source.Delete(ctx, e.FullPath()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	res, err := h.engine.Index(ctx, h.job, 0)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if rec := h.get(t, dvs.NewFileRecord(e, 0, time.Time{}).ID); rec.ReorgStatus != dvs.ReorgSkipped {
		t.Errorf("ReorgStatus = %s, want SKIPPED", rec.ReorgStatus)
	}
}

func TestIndex_Limit(t *testing.T) {
	h := newHarness(t, newMemoryStore(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		h.addFile(fmt.Sprintf("/in/doc%d.pdf", i), pdfContent)
	}
	if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	res, err := h.engine.Index(ctx, h.job, 3)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", res.Indexed)
	}

	res, err = h.engine.Index(ctx, h.job, 0)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Indexed != 2 {
		t.Errorf("second Indexed = %d, want 2", res.Indexed)
	}
}

func TestIndexOne_AlreadyIndexed(t *testing.T) {
	h := newHarness(t, newMemoryStore(t))
	ctx := context.Background()
	e := h.addFile("/in/a.pdf", pdfContent)
	if _, err := h.engine.Discover(ctx, h.job, "/in"); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	stale := h.get(t, dvs.NewFileRecord(e, 0, time.Time{}).ID)
	if _, err := h.engine.Index(ctx, h.job, 0); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	outcome, err := h.engine.IndexOne(ctx, h.job, stale)
	if err != nil {
		t.Fatalf("IndexOne() error = %v", err)
	}
	if outcome != dvs.OutcomeUnchanged {
		t.Errorf("IndexOne() = %q, want %q", outcome, dvs.OutcomeUnchanged)
	}
}
