package dvs

import (
	"context"
	"errors"
	"fmt"
)

// IndexResult counts the outcomes of one Index pass.
type IndexResult struct {
	Indexed  int64
	Failed   int64
	Deferred int64
}

// Index indexes up to limit records with indexing status PENDING (limit <= 0
// means all of them).
func (e *Engine) Index(ctx context.Context, job JobContext, limit int) (*IndexResult, error) {
	res := &IndexResult{}
	var cursor int64
	seen := 0

	for {
		batch, err := e.store.FindFilesByIndexingStatus(ctx, IndexingPending, cursor, e.batchSize)
		if err != nil {
			return res, fmt.Errorf("finding files to index: %w", err)
		}
		if len(batch) == 0 {
			return res, nil
		}

		for _, rec := range batch {
			cursor = rec.Seq
			if limit > 0 && seen >= limit {
				return res, nil
			}
			seen++

			outcome, err := e.IndexOne(ctx, job, rec)
			if err != nil {
				if isRecordLevel(err) {
					e.logger.Warn("skipping file during indexing", "id", rec.ID, "error", err)
					continue
				}
				return res, err
			}
			switch outcome {
			case OutcomeSucceeded:
				res.Indexed++
			case OutcomeFailed:
				res.Failed++
			case OutcomeDeferred:
				res.Deferred++
			}
		}
	}
}

// IndexOne indexes a single record and returns the per-file outcome:
// OutcomeSucceeded, OutcomeFailed (the record is now SKIPPED) or
// OutcomeDeferred (a transient I/O error left the record PENDING).
func (e *Engine) IndexOne(ctx context.Context, job JobContext, rec *FileRecord) (string, error) {
	meta, indexErr := e.readAndIndex(ctx, rec)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if indexErr != nil && IsTransient(indexErr) {
		e.logger.Warn("indexing deferred", fileArgs(rec, "error", indexErr)...)
		e.metrics.ObservePhase(PhaseIndex, OutcomeDeferred)
		return OutcomeDeferred, nil
	}

	now := e.clock.Now()
	_, changed, err := e.mutate(ctx, rec.ID, func(r *FileRecord) (bool, error) {
		if r.IndexingStatus != IndexingPending {
			return false, nil
		}
		r.IndexedAt = &now
		if indexErr != nil {
			if err := ValidateReorgTransition(r.ReorgStatus, ReorgSkipped); err != nil {
				return false, err
			}
			r.IndexingStatus = IndexingFailed
			r.IndexingError = indexErr.Error()
			r.ReorgStatus = ReorgSkipped
			r.ReorgError = SkippedReason
			return true, nil
		}
		if err := ValidateReorgTransition(r.ReorgStatus, ReorgPending); err != nil {
			return false, err
		}
		r.IndexingStatus = IndexingCompleted
		r.IndexingError = ""
		r.ReorgStatus = ReorgPending
		r.DocumentType = meta.DocumentType
		r.ClientCode = meta.ClientCode
		r.Year = meta.Year
		r.Month = meta.Month
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if !changed {
		// Indexed by someone else in the meantime.
		return OutcomeUnchanged, nil
	}

	if indexErr != nil {
		e.logger.Warn("indexing failed", fileArgs(rec, "job", job.JobExecutionID, "error", indexErr)...)
		e.metrics.ObservePhase(PhaseIndex, OutcomeFailed)
		return OutcomeFailed, nil
	}

	e.logger.Debug("file indexed", "id", rec.ID, "type", meta.DocumentType, "client", meta.ClientCode)
	e.metrics.ObservePhase(PhaseIndex, OutcomeSucceeded)
	return OutcomeSucceeded, nil
}

func (e *Engine) readAndIndex(ctx context.Context, rec *FileRecord) (*Metadata, error) {
	r, err := e.source.Open(ctx, rec.SourceFile())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", rec.SourceFile(), err)
	}
	defer r.Close()

	meta, err := e.indexer.Index(ctx, rec, r)
	if err != nil {
		var ce *ContentError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, err
	}
	if meta == nil {
		meta = &Metadata{}
	}
	return meta, nil
}
