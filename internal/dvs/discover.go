package dvs

import (
	"context"
	"errors"
	"fmt"
)

// DiscoverOutcome is what DiscoverEntry did with one source file.
type DiscoverOutcome int

const (
	// DiscoverInserted means the file was new and a PENDING record was created.
	DiscoverInserted DiscoverOutcome = iota + 1
	// DiscoverUnchanged means a record already existed; nothing was written.
	DiscoverUnchanged
	// DiscoverReappeared means a file deleted by cleanup is back at the source
	// and its record re-entered reorg PENDING.
	DiscoverReappeared
)

func (o DiscoverOutcome) String() string {
	switch o {
	case DiscoverInserted:
		return OutcomeInserted
	case DiscoverUnchanged:
		return OutcomeUnchanged
	case DiscoverReappeared:
		return OutcomeReappeared
	}
	return "unknown"
}

// DiscoverResult counts the outcomes of one Discover pass.
type DiscoverResult struct {
	Seen       int64
	Inserted   int64
	Unchanged  int64
	Reappeared int64
	Failed     int64
}

// Discover lists root on the source and records every file not seen before.
func (e *Engine) Discover(ctx context.Context, job JobContext, root string) (*DiscoverResult, error) {
	entries, err := e.source.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("listing source %s: %w", root, err)
	}

	e.logger.Info("discovering files", "root", root, "count", len(entries), "job", job.JobExecutionID)

	res := &DiscoverResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Seen++
		outcome, err := e.DiscoverEntry(ctx, job, entry)
		if err != nil {
			if isRecordLevel(err) {
				res.Failed++
				e.metrics.ObservePhase(PhaseDiscover, OutcomeFailed)
				e.logger.Warn("discovering file failed", "path", entry.FullPath(), "error", err)
				continue
			}
			return res, err
		}

		e.metrics.ObservePhase(PhaseDiscover, outcome.String())
		switch outcome {
		case DiscoverInserted:
			res.Inserted++
		case DiscoverUnchanged:
			res.Unchanged++
		case DiscoverReappeared:
			res.Reappeared++
		}
	}

	return res, nil
}

// DiscoverEntry records a single source file. Discovering an unchanged file
// again is a no-op.
func (e *Engine) DiscoverEntry(ctx context.Context, job JobContext, entry FileEntry) (DiscoverOutcome, error) {
	rec := NewFileRecord(entry, job.JobExecutionID, e.clock.Now())
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	existing, err := e.store.GetFile(ctx, rec.ID)
	if err != nil {
		return 0, fmt.Errorf("looking up file %s: %w", rec.ID, err)
	}

	if existing == nil {
		err := e.store.InsertFile(ctx, rec)
		if errors.Is(err, ErrDuplicate) {
			// Another discoverer inserted it between our lookup and insert.
			return DiscoverUnchanged, nil
		}
		if err != nil {
			return 0, fmt.Errorf("inserting file %s: %w", rec.ID, err)
		}
		e.logger.Debug("file discovered", "id", rec.ID, "path", entry.FullPath())
		return DiscoverInserted, nil
	}

	if !existing.DeletedFromSource {
		return DiscoverUnchanged, nil
	}

	_, changed, err := e.mutate(ctx, rec.ID, func(r *FileRecord) (bool, error) {
		if !r.DeletedFromSource {
			return false, nil
		}
		if err := ValidateReorgTransition(r.ReorgStatus, ReorgPending); err != nil {
			return false, err
		}
		r.DeletedFromSource = false
		r.SourceDeletionAt = nil
		r.DeletedBy = ""
		r.ReorgStatus = ReorgPending
		r.ReorgCompletedAt = nil
		r.ReorgDurationMs = 0
		r.ReorgError = ""
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if !changed {
		return DiscoverUnchanged, nil
	}

	e.logger.Info("file reappeared at source", "id", rec.ID, "path", entry.FullPath())
	return DiscoverReappeared, nil
}
