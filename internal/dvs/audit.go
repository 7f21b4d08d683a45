package dvs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const maxStartRetries = 5

// AuditRecorder writes the audit record of one job execution. It is used by
// a single goroutine; concurrent engine workers report through the Runner.
type AuditRecorder struct {
	store   RecordStore
	clock   Clock
	idgen   IDGenerator
	logger  Logger
	current *JobExecutionRecord
}

// NewAuditRecorder creates a recorder for one job execution.
func NewAuditRecorder(store RecordStore, clock Clock, idgen IDGenerator, logger Logger) *AuditRecorder {
	return &AuditRecorder{
		store:  store,
		clock:  clock,
		idgen:  idgen,
		logger: logger,
	}
}

// Start creates the audit record in STARTED with zero counters and assigns
// the audit ID and the next job execution ID.
func (a *AuditRecorder) Start(ctx context.Context, serviceName, jobName, parameters string) (*JobExecutionRecord, error) {
	if a.current != nil {
		return nil, fmt.Errorf("job execution %s already started", a.current.AuditID)
	}

	for attempt := 1; ; attempt++ {
		nextID, err := a.store.NextJobExecutionID(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting next job execution id: %w", err)
		}

		job := &JobExecutionRecord{
			AuditID:        a.idgen.New(),
			JobExecutionID: nextID,
			ServiceName:    serviceName,
			JobName:        jobName,
			Parameters:     parameters,
			StartTime:      a.clock.Now(),
			Status:         JobStarted,
			Steps:          []StepExecution{},
		}

		err = a.store.RecordJobExecution(ctx, job)
		if err == nil {
			a.current = job
			a.logger.Info("job started", "audit_id", job.AuditID, "job_execution_id", job.JobExecutionID, "job", jobName)
			return job.Clone(), nil
		}
		// Another process took the same job execution ID.
		if !errors.Is(err, ErrDuplicate) || attempt >= maxStartRetries {
			return nil, fmt.Errorf("recording job execution: %w", err)
		}
	}
}

// Current returns a copy of the audit record as last written, or nil before
// Start.
func (a *AuditRecorder) Current() *JobExecutionRecord {
	if a.current == nil {
		return nil
	}
	return a.current.Clone()
}

// RecordStep appends a finished step and adds delta to the job counters.
func (a *AuditRecorder) RecordStep(ctx context.Context, step StepExecution, delta Counters) error {
	if err := a.writable(); err != nil {
		return err
	}
	if err := delta.Validate(); err != nil {
		return fmt.Errorf("recording step %s: %w", step.Name, err)
	}

	counters := a.current.Counters.Add(delta)
	steps := append(append([]StepExecution(nil), a.current.Steps...), step)
	patch := JobPatch{Counters: &counters, Steps: steps}

	if err := a.store.UpdateJobExecution(context.WithoutCancel(ctx), a.current.AuditID, patch); err != nil {
		return fmt.Errorf("recording step %s: %w", step.Name, err)
	}
	a.current.Apply(patch)
	a.current.Version++
	return nil
}

// MarkStopping records that the job received a stop request.
func (a *AuditRecorder) MarkStopping(ctx context.Context) error {
	if err := a.writable(); err != nil {
		return err
	}
	status := JobStopping
	patch := JobPatch{Status: &status}
	if err := a.store.UpdateJobExecution(context.WithoutCancel(ctx), a.current.AuditID, patch); err != nil {
		return fmt.Errorf("marking job stopping: %w", err)
	}
	a.current.Apply(patch)
	a.current.Version++
	a.logger.Warn("job stopping", "audit_id", a.current.AuditID)
	return nil
}

// Finalize sets the final status exactly once and computes the duration and
// throughput of the run.
func (a *AuditRecorder) Finalize(ctx context.Context, status JobStatus, errDetail string) (*JobExecutionRecord, error) {
	if !status.IsFinal() {
		return nil, fmt.Errorf("finalizing job with non-final status %s", status)
	}
	if err := a.writable(); err != nil {
		return nil, err
	}

	end := a.clock.Now()
	d := end.Sub(a.current.StartTime)
	if d < 0 {
		d = 0
	}
	durationMs := d.Milliseconds()
	human := HumanDuration(d)
	fps := FilesPerSecond(a.current.Counters.Processed, durationMs)

	patch := JobPatch{
		Status:         &status,
		EndTime:        &end,
		DurationMs:     &durationMs,
		DurationHuman:  &human,
		FilesPerSecond: &fps,
	}
	if errDetail != "" {
		patch.ErrorDetail = &errDetail
	}

	if err := a.store.UpdateJobExecution(context.WithoutCancel(ctx), a.current.AuditID, patch); err != nil {
		return nil, fmt.Errorf("finalizing job execution: %w", err)
	}
	a.current.Apply(patch)
	a.current.Version++

	a.logger.Info("job finished", "audit_id", a.current.AuditID, "status", string(status),
		"duration", human, "files_per_second", fps, "processed", a.current.Counters.Processed)
	return a.current.Clone(), nil
}

func (a *AuditRecorder) writable() error {
	if a.current == nil {
		return errors.New("job execution not started")
	}
	if a.current.Status.IsFinal() {
		return fmt.Errorf("job execution %s: %w", a.current.AuditID, ErrJobFinalized)
	}
	return nil
}

// HumanDuration renders d at millisecond precision, e.g. "1m2.5s".
func HumanDuration(d time.Duration) string {
	return d.Truncate(time.Millisecond).String()
}
