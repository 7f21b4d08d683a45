package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dvsmart-go/internal/dvs"
)

var fileColumns = []string{
	"seq", "id", "source_path", "file_name", "extension", "file_size",
	"last_modified_at", "discovered_at", "discovered_by_job",
	"indexing_status", "indexed_at", "indexing_error",
	"reorg_status", "destination_path", "reorg_completed_at", "reorg_job_id",
	"reorg_duration_ms", "reorg_attempts", "reorg_error", "reorg_last_attempt_at",
	"deleted_from_source", "source_deletion_at", "deleted_by",
	"document_type", "client_code", "year", "month", "version",
}

// fileRow is the files_index row as scanned by sqlx.
type fileRow struct {
	Seq                int64        `db:"seq"`
	ID                 string       `db:"id"`
	SourcePath         string       `db:"source_path"`
	FileName           string       `db:"file_name"`
	Extension          string       `db:"extension"`
	FileSize           int64        `db:"file_size"`
	LastModifiedAt     time.Time    `db:"last_modified_at"`
	DiscoveredAt       time.Time    `db:"discovered_at"`
	DiscoveredByJob    int64        `db:"discovered_by_job"`
	IndexingStatus     string       `db:"indexing_status"`
	IndexedAt          sql.NullTime `db:"indexed_at"`
	IndexingError      string       `db:"indexing_error"`
	ReorgStatus        string       `db:"reorg_status"`
	DestinationPath    string       `db:"destination_path"`
	ReorgCompletedAt   sql.NullTime `db:"reorg_completed_at"`
	ReorgJobID         int64        `db:"reorg_job_id"`
	ReorgDurationMs    int64        `db:"reorg_duration_ms"`
	ReorgAttempts      int          `db:"reorg_attempts"`
	ReorgError         string       `db:"reorg_error"`
	ReorgLastAttemptAt sql.NullTime `db:"reorg_last_attempt_at"`
	DeletedFromSource  bool         `db:"deleted_from_source"`
	SourceDeletionAt   sql.NullTime `db:"source_deletion_at"`
	DeletedBy          string       `db:"deleted_by"`
	DocumentType       string       `db:"document_type"`
	ClientCode         string       `db:"client_code"`
	Year               int          `db:"year"`
	Month              int          `db:"month"`
	Version            int64        `db:"version"`
}

func (r *fileRow) toRecord() (*dvs.FileRecord, error) {
	reorg, err := dvs.ParseReorgStatus(r.ReorgStatus)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", r.ID, err)
	}
	return &dvs.FileRecord{
		ID:                 r.ID,
		Seq:                r.Seq,
		SourcePath:         r.SourcePath,
		FileName:           r.FileName,
		Extension:          r.Extension,
		FileSize:           r.FileSize,
		LastModifiedAt:     r.LastModifiedAt.UTC(),
		DiscoveredAt:       r.DiscoveredAt.UTC(),
		DiscoveredByJob:    r.DiscoveredByJob,
		IndexingStatus:     dvs.IndexingStatus(r.IndexingStatus),
		IndexedAt:          fromNullTime(r.IndexedAt),
		IndexingError:      r.IndexingError,
		ReorgStatus:        reorg,
		DestinationPath:    r.DestinationPath,
		ReorgCompletedAt:   fromNullTime(r.ReorgCompletedAt),
		ReorgJobID:         r.ReorgJobID,
		ReorgDurationMs:    r.ReorgDurationMs,
		ReorgAttempts:      r.ReorgAttempts,
		ReorgError:         r.ReorgError,
		ReorgLastAttemptAt: fromNullTime(r.ReorgLastAttemptAt),
		DeletedFromSource:  r.DeletedFromSource,
		SourceDeletionAt:   fromNullTime(r.SourceDeletionAt),
		DeletedBy:          r.DeletedBy,
		DocumentType:       r.DocumentType,
		ClientCode:         r.ClientCode,
		Year:               r.Year,
		Month:              r.Month,
		Version:            r.Version,
	}, nil
}

// fileValues returns the column values written for rec, excluding seq and
// version which the store manages.
func fileValues(rec *dvs.FileRecord) map[string]any {
	return map[string]any{
		"id":                    rec.ID,
		"source_path":           rec.SourcePath,
		"file_name":             rec.FileName,
		"extension":             rec.Extension,
		"file_size":             rec.FileSize,
		"last_modified_at":      rec.LastModifiedAt.UTC(),
		"discovered_at":         rec.DiscoveredAt.UTC(),
		"discovered_by_job":     rec.DiscoveredByJob,
		"indexing_status":       string(rec.IndexingStatus),
		"indexed_at":            toNullTime(rec.IndexedAt),
		"indexing_error":        rec.IndexingError,
		"reorg_status":          string(rec.ReorgStatus),
		"destination_path":      rec.DestinationPath,
		"reorg_completed_at":    toNullTime(rec.ReorgCompletedAt),
		"reorg_job_id":          rec.ReorgJobID,
		"reorg_duration_ms":     rec.ReorgDurationMs,
		"reorg_attempts":        rec.ReorgAttempts,
		"reorg_error":           rec.ReorgError,
		"reorg_last_attempt_at": toNullTime(rec.ReorgLastAttemptAt),
		"deleted_from_source":   rec.DeletedFromSource,
		"source_deletion_at":    toNullTime(rec.SourceDeletionAt),
		"deleted_by":            rec.DeletedBy,
		"document_type":         rec.DocumentType,
		"client_code":           rec.ClientCode,
		"year":                  rec.Year,
		"month":                 rec.Month,
	}
}

var jobColumns = []string{
	"audit_id", "job_execution_id", "service_name", "job_name", "parameters",
	"start_time", "end_time", "status", "counters", "steps",
	"duration_ms", "duration_human", "files_per_second", "error_detail", "version",
}

// jobRow is the job_executions_audit row. Counters and steps are JSON.
type jobRow struct {
	AuditID        string       `db:"audit_id"`
	JobExecutionID int64        `db:"job_execution_id"`
	ServiceName    string       `db:"service_name"`
	JobName        string       `db:"job_name"`
	Parameters     string       `db:"parameters"`
	StartTime      time.Time    `db:"start_time"`
	EndTime        sql.NullTime `db:"end_time"`
	Status         string       `db:"status"`
	Counters       string       `db:"counters"`
	Steps          string       `db:"steps"`
	DurationMs     int64        `db:"duration_ms"`
	DurationHuman  string       `db:"duration_human"`
	FilesPerSecond float64      `db:"files_per_second"`
	ErrorDetail    string       `db:"error_detail"`
	Version        int64        `db:"version"`
}

func (r *jobRow) toRecord() (*dvs.JobExecutionRecord, error) {
	job := &dvs.JobExecutionRecord{
		AuditID:        r.AuditID,
		JobExecutionID: r.JobExecutionID,
		ServiceName:    r.ServiceName,
		JobName:        r.JobName,
		Parameters:     r.Parameters,
		StartTime:      r.StartTime.UTC(),
		EndTime:        fromNullTime(r.EndTime),
		Status:         dvs.JobStatus(r.Status),
		DurationMs:     r.DurationMs,
		DurationHuman:  r.DurationHuman,
		FilesPerSecond: r.FilesPerSecond,
		ErrorDetail:    r.ErrorDetail,
		Version:        r.Version,
	}
	if err := json.Unmarshal([]byte(r.Counters), &job.Counters); err != nil {
		return nil, fmt.Errorf("decoding counters of job %s: %w", r.AuditID, err)
	}
	if err := json.Unmarshal([]byte(r.Steps), &job.Steps); err != nil {
		return nil, fmt.Errorf("decoding steps of job %s: %w", r.AuditID, err)
	}
	if job.Steps == nil {
		job.Steps = []dvs.StepExecution{}
	}
	return job, nil
}

func jobValues(job *dvs.JobExecutionRecord) (map[string]any, error) {
	counters, err := json.Marshal(job.Counters)
	if err != nil {
		return nil, fmt.Errorf("encoding counters: %w", err)
	}
	steps := job.Steps
	if steps == nil {
		steps = []dvs.StepExecution{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("encoding steps: %w", err)
	}
	return map[string]any{
		"audit_id":         job.AuditID,
		"job_execution_id": job.JobExecutionID,
		"service_name":     job.ServiceName,
		"job_name":         job.JobName,
		"parameters":       job.Parameters,
		"start_time":       job.StartTime.UTC(),
		"end_time":         toNullTime(job.EndTime),
		"status":           string(job.Status),
		"counters":         string(counters),
		"steps":            string(stepsJSON),
		"duration_ms":      job.DurationMs,
		"duration_human":   job.DurationHuman,
		"files_per_second": job.FilesPerSecond,
		"error_detail":     job.ErrorDetail,
	}, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
