package dvs

import (
	"fmt"
	"time"
)

// Counters are the aggregate outcome counts of a job execution.
type Counters struct {
	Discovered     int64 `json:"discovered"`
	Indexed        int64 `json:"indexed"`
	IndexingFailed int64 `json:"indexingFailed"`
	Processed      int64 `json:"processed"`
	Skipped        int64 `json:"skipped"`
	Failed         int64 `json:"failed"`
	Deleted        int64 `json:"deleted"`
	DeletionFailed int64 `json:"deletionFailed"`
	Recovered      int64 `json:"recovered"`
	Requeued       int64 `json:"requeued"`
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Discovered:     c.Discovered + o.Discovered,
		Indexed:        c.Indexed + o.Indexed,
		IndexingFailed: c.IndexingFailed + o.IndexingFailed,
		Processed:      c.Processed + o.Processed,
		Skipped:        c.Skipped + o.Skipped,
		Failed:         c.Failed + o.Failed,
		Deleted:        c.Deleted + o.Deleted,
		DeletionFailed: c.DeletionFailed + o.DeletionFailed,
		Recovered:      c.Recovered + o.Recovered,
		Requeued:       c.Requeued + o.Requeued,
	}
}

// Validate rejects negative counts. Counters only ever grow.
func (c Counters) Validate() error {
	fields := map[string]int64{
		"discovered":     c.Discovered,
		"indexed":        c.Indexed,
		"indexingFailed": c.IndexingFailed,
		"processed":      c.Processed,
		"skipped":        c.Skipped,
		"failed":         c.Failed,
		"deleted":        c.Deleted,
		"deletionFailed": c.DeletionFailed,
		"recovered":      c.Recovered,
		"requeued":       c.Requeued,
	}
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("counter %s is negative: %d", name, v)
		}
	}
	return nil
}

// StepExecution is the outcome of one phase within a job execution.
type StepExecution struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	ReadCount  int64      `json:"readCount"`
	WriteCount int64      `json:"writeCount"`
	SkipCount  int64      `json:"skipCount"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime"`
	DurationMs int64      `json:"durationMs"`
	Error      string     `json:"error,omitempty"`
}

// JobExecutionRecord is the permanent audit trail of one batch run.
type JobExecutionRecord struct {
	AuditID        string          `json:"auditId"`
	JobExecutionID int64           `json:"jobExecutionId"`
	ServiceName    string          `json:"serviceName"`
	JobName        string          `json:"jobName"`
	Parameters     string          `json:"parameters,omitempty"`
	StartTime      time.Time       `json:"startTime"`
	EndTime        *time.Time      `json:"endTime,omitempty"`
	Status         JobStatus       `json:"status"`
	Counters       Counters        `json:"counters"`
	DurationMs     int64           `json:"durationMs"`
	DurationHuman  string          `json:"durationHuman,omitempty"`
	FilesPerSecond float64         `json:"filesPerSecond"`
	Steps          []StepExecution `json:"steps"`
	ErrorDetail    string          `json:"errorDetail,omitempty"`
	Version        int64           `json:"version"`
}

// Context returns the tagging information handed to the engine.
func (j *JobExecutionRecord) Context() JobContext {
	return JobContext{
		AuditID:        j.AuditID,
		JobExecutionID: j.JobExecutionID,
		ServiceName:    j.ServiceName,
		JobName:        j.JobName,
	}
}

// Clone returns a deep copy of j.
func (j *JobExecutionRecord) Clone() *JobExecutionRecord {
	c := *j
	c.EndTime = cloneTime(j.EndTime)
	c.Steps = append([]StepExecution(nil), j.Steps...)
	return &c
}

// Apply copies every non-nil field of p onto j.
func (j *JobExecutionRecord) Apply(p JobPatch) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.EndTime != nil {
		t := *p.EndTime
		j.EndTime = &t
	}
	if p.Counters != nil {
		j.Counters = *p.Counters
	}
	if p.Steps != nil {
		j.Steps = append([]StepExecution(nil), p.Steps...)
	}
	if p.DurationMs != nil {
		j.DurationMs = *p.DurationMs
	}
	if p.DurationHuman != nil {
		j.DurationHuman = *p.DurationHuman
	}
	if p.FilesPerSecond != nil {
		j.FilesPerSecond = *p.FilesPerSecond
	}
	if p.ErrorDetail != nil {
		j.ErrorDetail = *p.ErrorDetail
	}
}

// JobPatch is a partial update of a JobExecutionRecord. Nil fields are left
// untouched; a non-nil Steps replaces the whole step list.
type JobPatch struct {
	Status         *JobStatus
	EndTime        *time.Time
	Counters       *Counters
	Steps          []StepExecution
	DurationMs     *int64
	DurationHuman  *string
	FilesPerSecond *float64
	ErrorDetail    *string
}

// JobContext tags lifecycle writes with the run that performed them.
type JobContext struct {
	AuditID        string
	JobExecutionID int64
	ServiceName    string
	JobName        string
}

// FilesPerSecond is processed files divided by the duration in seconds.
// It is 0 for a zero-length run.
func FilesPerSecond(processed, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(processed) / (float64(durationMs) / 1000)
}
