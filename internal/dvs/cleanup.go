package dvs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// CleanupResult counts the outcomes of one Cleanup pass.
type CleanupResult struct {
	Deleted        int64
	DeletionFailed int64
}

// Cleanup deletes the source file of up to limit successfully reorganized
// records (limit <= 0 means all of them). A source file that is already gone
// counts as deleted. A failed deletion leaves the record untouched so the next
// run tries again.
func (e *Engine) Cleanup(ctx context.Context, job JobContext, limit int) (*CleanupResult, error) {
	res := &CleanupResult{}
	var cursor int64
	seen := 0

	for {
		batch, err := e.store.FindCleanupCandidates(ctx, cursor, e.batchSize)
		if err != nil {
			return res, fmt.Errorf("finding cleanup candidates: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			cursor = rec.Seq
			if limit > 0 && seen >= limit {
				return res, nil
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			seen++

			deleted, err := e.cleanupOne(ctx, job, rec)
			if err != nil {
				if isRecordLevel(err) {
					e.logger.Warn("skipping file during cleanup", "id", rec.ID, "error", err)
					continue
				}
				return res, err
			}
			if deleted {
				res.Deleted++
			} else {
				res.DeletionFailed++
			}
		}
	}

	e.logger.Info("cleanup finished", "job", job.JobExecutionID, "deleted", res.Deleted, "failed", res.DeletionFailed)
	return res, nil
}

func (e *Engine) cleanupOne(ctx context.Context, job JobContext, rec *FileRecord) (bool, error) {
	err := e.source.Delete(ctx, rec.SourceFile())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		e.logger.Warn("deleting source file failed", fileArgs(rec, "error", err)...)
		e.metrics.ObservePhase(PhaseCleanup, OutcomeFailed)
		return false, nil
	}

	now := e.clock.Now()
	_, changed, err := e.mutate(ctx, rec.ID, func(r *FileRecord) (bool, error) {
		if r.DeletedFromSource {
			return false, nil
		}
		if r.ReorgStatus != ReorgSuccess {
			return false, &TransitionError{
				Code:    "INVALID_TRANSITION",
				Message: fmt.Sprintf("cannot delete source of %s with reorg status %s", r.ID, r.ReorgStatus),
			}
		}
		r.DeletedFromSource = true
		r.SourceDeletionAt = &now
		r.DeletedBy = e.actor
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		e.publish(ctx, Event{
			Type:           EventFileDeleted,
			AuditID:        job.AuditID,
			JobExecutionID: job.JobExecutionID,
			FileID:         rec.ID,
			Status:         string(ReorgSuccess),
			Path:           rec.SourceFile(),
			At:             now,
		})
	}

	e.logger.Debug("source file deleted", fileArgs(rec)...)
	e.metrics.ObservePhase(PhaseCleanup, OutcomeSucceeded)
	return true, nil
}

// Recover moves up to limit PROCESSING records (limit <= 0 means all) whose
// last attempt started more than staleAfter ago back to PENDING. Attempt
// counts are kept. It returns the number of records recovered.
func (e *Engine) Recover(ctx context.Context, staleAfter time.Duration, limit int) (int64, error) {
	olderThan := e.clock.Now().Add(-staleAfter)

	var recovered int64
	for {
		pageSize := e.batchSize
		if limit > 0 && limit-int(recovered) < pageSize {
			pageSize = limit - int(recovered)
		}
		if pageSize <= 0 {
			return recovered, nil
		}

		batch, err := e.store.FindStaleProcessing(ctx, olderThan, pageSize)
		if err != nil {
			return recovered, fmt.Errorf("finding stale processing files: %w", err)
		}

		progressed := false
		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return recovered, err
			}

			stale := rec.Clone()
			if err := ValidateReorgTransition(stale.ReorgStatus, ReorgPending); err != nil {
				continue
			}
			stale.ReorgStatus = ReorgPending
			stale.ReorgError = RecoveredReason

			err := e.store.UpdateFile(ctx, stale)
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
				// Finished or recovered by someone else.
				continue
			}
			if err != nil {
				return recovered, fmt.Errorf("recovering %s: %w", rec.ID, err)
			}

			recovered++
			progressed = true
			e.metrics.ObservePhase(PhaseRecover, OutcomeSucceeded)
			e.logger.Warn("recovered stale processing file", "id", rec.ID, "attempts", rec.ReorgAttempts)
		}

		if len(batch) < pageSize || !progressed {
			return recovered, nil
		}
	}
}

// Requeue moves a FAILED record back to PENDING so it can be claimed again.
// Only the retry policy calls this; attempt counts are kept.
func (e *Engine) Requeue(ctx context.Context, rec *FileRecord) error {
	requeued := rec.Clone()
	if err := ValidateReorgTransition(requeued.ReorgStatus, ReorgPending); err != nil {
		return err
	}
	if requeued.ReorgStatus != ReorgFailed {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("only FAILED files can be requeued, %s is %s", rec.ID, rec.ReorgStatus),
		}
	}
	requeued.ReorgStatus = ReorgPending

	if err := e.store.UpdateFile(ctx, requeued); err != nil {
		return fmt.Errorf("requeueing %s: %w", rec.ID, err)
	}
	*rec = *requeued

	e.metrics.ObservePhase(PhaseRequeue, OutcomeSucceeded)
	e.logger.Info("requeued failed file", "id", rec.ID, "attempts", rec.ReorgAttempts)
	return nil
}

// RequeueFailed requeues FAILED records that have been attempted fewer than
// maxAttempts times and returns how many were requeued.
func (e *Engine) RequeueFailed(ctx context.Context, maxAttempts, limit int) (int64, error) {
	var (
		requeued int64
		cursor   int64
		seen     int
	)
	for {
		batch, err := e.store.FindRetryableFailed(ctx, maxAttempts, cursor, e.batchSize)
		if err != nil {
			return requeued, fmt.Errorf("finding retryable files: %w", err)
		}
		if len(batch) == 0 {
			return requeued, nil
		}

		for _, rec := range batch {
			cursor = rec.Seq
			if limit > 0 && seen >= limit {
				return requeued, nil
			}
			seen++

			err := e.Requeue(ctx, rec)
			if err != nil {
				if isRecordLevel(err) {
					continue
				}
				return requeued, err
			}
			requeued++
		}
	}
}
