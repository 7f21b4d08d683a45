package dvs

import (
	"context"
	"time"
)

// RecordStore is durable keyed storage for file records and job execution
// audit records. Implementations must enforce ID uniqueness atomically and
// apply UpdateFile as a single compare-and-set on Version.
type RecordStore interface {
	// File records

	// InsertFile stores a new record, assigning Seq and Version.
	// Returns ErrDuplicate if a record with the same ID exists.
	InsertFile(ctx context.Context, rec *FileRecord) error

	// UpsertFile inserts rec, or unconditionally replaces the mutable fields of
	// the stored record with the same ID. Seq and Version are updated on rec.
	UpsertFile(ctx context.Context, rec *FileRecord) error

	// UpdateFile writes rec only if the stored version equals rec.Version.
	// On success rec.Version is advanced. Returns ErrNotFound when the ID is
	// absent and ErrConflict when the version no longer matches.
	UpdateFile(ctx context.Context, rec *FileRecord) error

	// GetFile returns the record with the given ID, or nil if it does not exist.
	GetFile(ctx context.Context, id string) (*FileRecord, error)

	// FindFilesByReorgStatus returns up to limit records with the given reorg
	// status and Seq > cursor, in ascending Seq order.
	FindFilesByReorgStatus(ctx context.Context, status ReorgStatus, cursor int64, limit int) ([]*FileRecord, error)

	// FindFilesByIndexingStatus is FindFilesByReorgStatus for the indexing phase.
	FindFilesByIndexingStatus(ctx context.Context, status IndexingStatus, cursor int64, limit int) ([]*FileRecord, error)

	// FindCleanupCandidates returns records with reorg SUCCESS that are not yet
	// deleted from source, with Seq > cursor, in ascending Seq order.
	FindCleanupCandidates(ctx context.Context, cursor int64, limit int) ([]*FileRecord, error)

	// FindStaleProcessing returns PROCESSING records whose last attempt started
	// before olderThan, oldest attempt first.
	FindStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*FileRecord, error)

	// FindRetryableFailed returns FAILED records with fewer than maxAttempts
	// attempts and Seq > cursor, in ascending Seq order.
	FindRetryableFailed(ctx context.Context, maxAttempts int, cursor int64, limit int) ([]*FileRecord, error)

	// CountFilesByReorgStatus returns the number of records per reorg status.
	CountFilesByReorgStatus(ctx context.Context) (map[ReorgStatus]int64, error)

	// Job execution records

	// NextJobExecutionID returns one more than the highest job execution ID.
	NextJobExecutionID(ctx context.Context) (int64, error)

	// RecordJobExecution stores a new job execution record.
	// Returns ErrDuplicate if the audit ID or job execution ID is taken.
	RecordJobExecution(ctx context.Context, job *JobExecutionRecord) error

	// UpdateJobExecution applies patch to the record with the given audit ID.
	// Returns ErrNotFound if it does not exist and ErrJobFinalized if its
	// status is already final.
	UpdateJobExecution(ctx context.Context, auditID string, patch JobPatch) error

	// GetJobExecution returns the record with the given audit ID, or nil.
	GetJobExecution(ctx context.Context, auditID string) (*JobExecutionRecord, error)

	// ListJobExecutions returns up to limit records, newest first.
	ListJobExecutions(ctx context.Context, limit int) ([]*JobExecutionRecord, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
