package dvs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ReorgResult counts the outcomes of one Reorganize pass.
type ReorgResult struct {
	Claimed   int64
	Succeeded int64
	Failed    int64
	// Lost counts claims whose final write lost a version race, e.g. because
	// the recovery sweep reclaimed the record mid-transfer.
	Lost int64
}

// ClaimNext atomically moves the first claimable PENDING record from PENDING
// to PROCESSING and returns it. It returns nil when nothing is left to claim.
// Concurrent callers never receive the same record.
func (e *Engine) ClaimNext(ctx context.Context, job JobContext) (*FileRecord, error) {
	var cursor int64
	for {
		batch, err := e.store.FindFilesByReorgStatus(ctx, ReorgPending, cursor, e.batchSize)
		if err != nil {
			return nil, fmt.Errorf("finding files to reorganize: %w", err)
		}
		if len(batch) == 0 {
			return nil, nil
		}

		for _, rec := range batch {
			cursor = rec.Seq
			if err := e.claim(ctx, job, rec); err != nil {
				if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
					// Someone else claimed it first.
					continue
				}
				if isRecordLevel(err) {
					e.logger.Warn("skipping unclaimable file", "id", rec.ID, "error", err)
					continue
				}
				return nil, err
			}
			return rec, nil
		}
	}
}

// claim performs the PENDING -> PROCESSING compare-and-set on rec as read.
// It never reloads: a stale read means another claimer won.
func (e *Engine) claim(ctx context.Context, job JobContext, rec *FileRecord) error {
	if err := ValidateReorgTransition(rec.ReorgStatus, ReorgProcessing); err != nil {
		return fmt.Errorf("claiming %s: %w", rec.ID, ErrConflict)
	}

	now := e.clock.Now()
	suffix := ""
	if e.encryptor != nil {
		suffix = e.encryptor.Suffix()
	}

	claimed := rec.Clone()
	claimed.ReorgStatus = ReorgProcessing
	claimed.ReorgAttempts++
	claimed.ReorgLastAttemptAt = &now
	claimed.ReorgJobID = job.JobExecutionID
	claimed.DestinationPath = DestinationPath(e.destRoot, rec.ID, rec.FileName, suffix)
	if err := claimed.Validate(); err != nil {
		return err
	}

	if err := e.store.UpdateFile(ctx, claimed); err != nil {
		return fmt.Errorf("claiming %s: %w", rec.ID, err)
	}
	*rec = *claimed
	return nil
}

// ReorganizeOne transfers a claimed record to its destination and records the
// outcome. It returns OutcomeSucceeded, OutcomeFailed or OutcomeLost. If ctx
// is cancelled mid-transfer the record is left PROCESSING for the recovery
// sweep and the context error is returned.
func (e *Engine) ReorganizeOne(ctx context.Context, job JobContext, rec *FileRecord) (string, error) {
	if rec.ReorgStatus != ReorgProcessing {
		return "", &TransitionError{
			Code:    "NOT_CLAIMED",
			Message: fmt.Sprintf("file %s is %s, not PROCESSING", rec.ID, rec.ReorgStatus),
		}
	}

	start := e.clock.Now()
	transferErr := e.transfer(ctx, rec)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := e.clock.Now()
	elapsed := now.Sub(start)
	updated := rec.Clone()
	if transferErr == nil {
		updated.ReorgStatus = ReorgSuccess
		updated.ReorgCompletedAt = &now
		updated.ReorgDurationMs = elapsed.Milliseconds()
		updated.ReorgError = ""
	} else {
		updated.ReorgStatus = ReorgFailed
		updated.ReorgError = transferErr.Error()
	}

	err := e.store.UpdateFile(ctx, updated)
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		e.logger.Warn("reorganized file was modified concurrently", "id", rec.ID, "error", err)
		e.metrics.ObservePhase(PhaseReorganize, OutcomeLost)
		return OutcomeLost, nil
	}
	if err != nil {
		return "", fmt.Errorf("recording reorganization of %s: %w", rec.ID, err)
	}
	*rec = *updated

	ev := Event{
		AuditID:        job.AuditID,
		JobExecutionID: job.JobExecutionID,
		FileID:         rec.ID,
		Status:         string(rec.ReorgStatus),
		Path:           rec.DestinationPath,
		At:             now,
	}
	if transferErr != nil {
		e.logger.Warn("reorganizing file failed", fileArgs(rec, "attempt", rec.ReorgAttempts, "error", transferErr)...)
		e.metrics.ObservePhase(PhaseReorganize, OutcomeFailed)
		ev.Type = EventFileFailed
		ev.Error = rec.ReorgError
		e.publish(ctx, ev)
		return OutcomeFailed, nil
	}

	e.logger.Debug("file reorganized", "id", rec.ID, "destination", rec.DestinationPath, "duration_ms", rec.ReorgDurationMs)
	e.metrics.ObservePhase(PhaseReorganize, OutcomeSucceeded)
	e.metrics.ObserveReorgDuration(elapsed)
	ev.Type = EventFileReorganized
	e.publish(ctx, ev)
	return OutcomeSucceeded, nil
}

// transfer streams the source file to its destination, encrypting on the way
// when an encryptor is configured.
func (e *Engine) transfer(ctx context.Context, rec *FileRecord) error {
	src, err := e.source.Open(ctx, rec.SourceFile())
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	if e.encryptor == nil {
		if err := e.dest.Write(ctx, rec.DestinationPath, src, rec.FileSize); err != nil {
			return fmt.Errorf("writing destination: %w", err)
		}
		return nil
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(e.encryptor.Encrypt(src, pw))
	}()
	err = e.dest.Write(ctx, rec.DestinationPath, pr, -1)
	// Unblocks the encrypting goroutine if the destination stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return fmt.Errorf("writing encrypted destination: %w", err)
	}
	return nil
}

// Reorganize runs workers goroutines that claim and transfer PENDING records
// until none are left or limit claims were made (limit <= 0 means no limit).
// Per-file failures are recorded on the file; only a store error stops the
// pool, and the first one is returned.
func (e *Engine) Reorganize(ctx context.Context, job JobContext, workers, limit int) (*ReorgResult, error) {
	if workers < 1 {
		workers = 1
	}

	var (
		budget atomic.Int64
		mu     sync.Mutex
		res    = &ReorgResult{}
	)
	budget.Store(int64(limit))

	g, workCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for workCtx.Err() == nil {
				if limit > 0 && budget.Add(-1) < 0 {
					return nil
				}

				rec, err := e.ClaimNext(workCtx, job)
				if err != nil {
					return workerErr(workCtx, err)
				}
				if rec == nil {
					return nil
				}

				mu.Lock()
				res.Claimed++
				mu.Unlock()

				outcome, err := e.ReorganizeOne(workCtx, job, rec)
				if err != nil {
					return workerErr(workCtx, err)
				}

				mu.Lock()
				switch outcome {
				case OutcomeSucceeded:
					res.Succeeded++
				case OutcomeFailed:
					res.Failed++
				case OutcomeLost:
					res.Lost++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	e.logger.Info("reorganization finished", "job", job.JobExecutionID, "workers", workers,
		"claimed", res.Claimed, "succeeded", res.Succeeded, "failed", res.Failed, "lost", res.Lost)
	return res, nil
}

// workerErr drops errors caused by the pool shutting down, so g.Wait reports
// the store error that triggered it or the caller's cancellation.
func workerErr(workCtx context.Context, err error) error {
	if workCtx.Err() != nil {
		return nil
	}
	return err
}
