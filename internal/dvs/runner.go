package dvs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunOptions are the parameters of one job execution.
type RunOptions struct {
	Root        string        `json:"root,omitempty"`
	Workers     int           `json:"workers"`
	MaxAttempts int           `json:"maxAttempts"`
	StaleAfter  time.Duration `json:"staleAfter"`
	Cleanup     bool          `json:"cleanup"`
	Limit       int           `json:"limit,omitempty"`
}

// Runner executes lifecycle phases inside an audited job execution.
type Runner struct {
	engine      *Engine
	idgen       IDGenerator
	serviceName string
}

// NewRunner creates a Runner that records its job executions under serviceName.
func NewRunner(engine *Engine, idgen IDGenerator, serviceName string) *Runner {
	return &Runner{engine: engine, idgen: idgen, serviceName: serviceName}
}

// Run executes phases in the given order (all phases when none are given,
// cleanup only if opts.Cleanup is set) and returns the finalized audit record.
//
// A cancelled ctx stops the job between files: the record is marked STOPPING
// and then STOPPED, and claimed files are left for the recovery sweep. A store
// failure marks the job FAILED. Failures of individual files never abort it.
func (r *Runner) Run(ctx context.Context, jobName string, opts RunOptions, phases ...Phase) (*JobExecutionRecord, error) {
	e := r.engine
	if len(phases) == 0 {
		for _, p := range AllPhases {
			if p == PhaseCleanup && !opts.Cleanup {
				continue
			}
			phases = append(phases, p)
		}
	}

	params, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encoding job parameters: %w", err)
	}

	recorder := NewAuditRecorder(e.store, e.clock, r.idgen, e.logger)
	started, err := recorder.Start(ctx, r.serviceName, jobName, string(params))
	if err != nil {
		return nil, err
	}
	job := started.Context()

	e.publish(ctx, Event{
		Type:           EventJobStarted,
		AuditID:        job.AuditID,
		JobExecutionID: job.JobExecutionID,
		Status:         string(JobStarted),
		At:             started.StartTime,
	})

	var runErr error
	for _, phase := range phases {
		if ctx.Err() != nil {
			break
		}

		stepStart := e.clock.Now()
		step, delta, err := r.runPhase(ctx, job, phase, opts)
		step.Name = string(phase)
		step.StartTime = stepStart
		step.EndTime = e.clock.Now()
		step.DurationMs = step.EndTime.Sub(stepStart).Milliseconds()
		switch {
		case err == nil:
			step.Status = StepCompleted
		case ctx.Err() != nil:
			step.Status = StepStopped
		default:
			step.Status = StepFailed
			step.Error = err.Error()
		}

		if recErr := recorder.RecordStep(ctx, step, delta); recErr != nil {
			runErr = recErr
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				runErr = fmt.Errorf("%s phase: %w", phase, err)
			}
			break
		}
	}

	status := JobCompleted
	detail := ""
	switch {
	case ctx.Err() != nil:
		status = JobStopped
		if err := recorder.MarkStopping(ctx); err != nil {
			e.logger.Error("marking job stopping failed", "audit_id", job.AuditID, "error", err)
		}
		runErr = ctx.Err()
	case runErr != nil:
		status = JobFailed
		detail = runErr.Error()
	}

	final, err := recorder.Finalize(ctx, status, detail)
	if err != nil {
		return recorder.Current(), errors.Join(runErr, err)
	}

	e.metrics.ObserveJob(final.Status, time.Duration(final.DurationMs)*time.Millisecond, final.FilesPerSecond)
	e.publish(context.WithoutCancel(ctx), Event{
		Type:           EventJobFinished,
		AuditID:        final.AuditID,
		JobExecutionID: final.JobExecutionID,
		Status:         string(final.Status),
		Error:          final.ErrorDetail,
		At:             *final.EndTime,
	})
	return final, runErr
}

func (r *Runner) runPhase(ctx context.Context, job JobContext, phase Phase, opts RunOptions) (StepExecution, Counters, error) {
	e := r.engine
	var (
		step  StepExecution
		delta Counters
	)

	switch phase {
	case PhaseDiscover:
		res, err := e.Discover(ctx, job, opts.Root)
		if res != nil {
			step.ReadCount = res.Seen
			step.WriteCount = res.Inserted + res.Reappeared
			step.SkipCount = res.Unchanged + res.Failed
			delta.Discovered = res.Inserted + res.Reappeared
		}
		return step, delta, err

	case PhaseIndex:
		res, err := e.Index(ctx, job, opts.Limit)
		if res != nil {
			step.ReadCount = res.Indexed + res.Failed + res.Deferred
			step.WriteCount = res.Indexed + res.Failed
			step.SkipCount = res.Deferred
			delta.Indexed = res.Indexed
			delta.IndexingFailed = res.Failed
			delta.Skipped = res.Failed
		}
		return step, delta, err

	case PhaseRecover:
		if opts.StaleAfter <= 0 {
			return step, delta, nil
		}
		n, err := e.Recover(ctx, opts.StaleAfter, opts.Limit)
		step.ReadCount = n
		step.WriteCount = n
		delta.Recovered = n
		return step, delta, err

	case PhaseRequeue:
		if opts.MaxAttempts <= 0 {
			return step, delta, nil
		}
		n, err := e.RequeueFailed(ctx, opts.MaxAttempts, opts.Limit)
		step.ReadCount = n
		step.WriteCount = n
		delta.Requeued = n
		return step, delta, err

	case PhaseReorganize:
		res, err := e.Reorganize(ctx, job, opts.Workers, opts.Limit)
		if res != nil {
			step.ReadCount = res.Claimed
			step.WriteCount = res.Succeeded
			step.SkipCount = res.Failed + res.Lost
			delta.Processed = res.Succeeded
			delta.Failed = res.Failed
		}
		return step, delta, err

	case PhaseCleanup:
		res, err := e.Cleanup(ctx, job, opts.Limit)
		if res != nil {
			step.ReadCount = res.Deleted + res.DeletionFailed
			step.WriteCount = res.Deleted
			step.SkipCount = res.DeletionFailed
			delta.Deleted = res.Deleted
			delta.DeletionFailed = res.DeletionFailed
		}
		return step, delta, err
	}

	return step, delta, fmt.Errorf("unknown phase %q", phase)
}
