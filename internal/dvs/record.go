package dvs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SkippedReason is recorded as reorgError when indexing fails.
const SkippedReason = "skipped due to indexing failure"

// RecoveredReason is recorded as reorgError when a stale claim is reclaimed.
const RecoveredReason = "recovered from stale processing"

// FileRecord is the lifecycle record of one version of one source file.
// Metadata captured at discovery (path, name, size, mtime) never changes;
// a modified file yields a new ID and therefore a new record.
type FileRecord struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"seq"`
	SourcePath      string    `json:"sourcePath"`
	FileName        string    `json:"fileName"`
	Extension       string    `json:"extension"`
	FileSize        int64     `json:"fileSize"`
	LastModifiedAt  time.Time `json:"lastModifiedAt"`
	DiscoveredAt    time.Time `json:"discoveredAt"`
	DiscoveredByJob int64     `json:"discoveredByJob"`

	IndexingStatus IndexingStatus `json:"indexingStatus"`
	IndexedAt      *time.Time     `json:"indexedAt,omitempty"`
	IndexingError  string         `json:"indexingError,omitempty"`

	ReorgStatus        ReorgStatus `json:"reorgStatus,omitempty"`
	DestinationPath    string      `json:"destinationPath,omitempty"`
	ReorgCompletedAt   *time.Time  `json:"reorgCompletedAt,omitempty"`
	ReorgJobID         int64       `json:"reorgJobId,omitempty"`
	ReorgDurationMs    int64       `json:"reorgDurationMs,omitempty"`
	ReorgAttempts      int         `json:"reorgAttempts"`
	ReorgError         string      `json:"reorgError,omitempty"`
	ReorgLastAttemptAt *time.Time  `json:"reorgLastAttemptAt,omitempty"`

	DeletedFromSource bool       `json:"deletedFromSource"`
	SourceDeletionAt  *time.Time `json:"sourceDeletionAt,omitempty"`
	DeletedBy         string     `json:"deletedBy,omitempty"`

	DocumentType string `json:"documentType,omitempty"`
	ClientCode   string `json:"clientCode,omitempty"`
	Year         int    `json:"year,omitempty"`
	Month        int    `json:"month,omitempty"`

	// Version is the optimistic-lock counter. Stores advance it on every write.
	Version int64 `json:"version"`
}

// Fingerprint returns the deterministic ID of a file version.
// mtime is taken at millisecond precision so the ID survives a store round-trip.
func Fingerprint(sourcePath, fileName string, size int64, modTime time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d", sourcePath, fileName, size, modTime.UTC().UnixMilli())
	return hex.EncodeToString(h.Sum(nil))
}

// NewFileRecord builds the record inserted when entry is first discovered.
func NewFileRecord(entry FileEntry, jobExecutionID int64, now time.Time) *FileRecord {
	return &FileRecord{
		ID:              Fingerprint(entry.Dir, entry.Name, entry.Size, entry.ModTime),
		SourcePath:      entry.Dir,
		FileName:        entry.Name,
		Extension:       ExtensionOf(entry.Name),
		FileSize:        entry.Size,
		LastModifiedAt:  entry.ModTime.UTC().Truncate(time.Millisecond),
		DiscoveredAt:    now,
		DiscoveredByJob: jobExecutionID,
		IndexingStatus:  IndexingPending,
		ReorgStatus:     ReorgUnset,
	}
}

// ExtensionOf returns the lower-case extension of name without the dot.
func ExtensionOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// SourceFile returns the full source path of the file.
func (r *FileRecord) SourceFile() string {
	return filepath.Join(r.SourcePath, r.FileName)
}

// Clone returns a deep copy of r.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	c.IndexedAt = cloneTime(r.IndexedAt)
	c.ReorgCompletedAt = cloneTime(r.ReorgCompletedAt)
	c.ReorgLastAttemptAt = cloneTime(r.ReorgLastAttemptAt)
	c.SourceDeletionAt = cloneTime(r.SourceDeletionAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Validate checks field constraints and the cross-phase invariants:
//
//	indexing PENDING   => reorg unset
//	indexing FAILED    => reorg SKIPPED
//	indexing COMPLETED => reorg PENDING, PROCESSING, SUCCESS or FAILED
//	deletedFromSource  => reorg SUCCESS
func (r *FileRecord) Validate() error {
	var problems []string

	if r.ID == "" {
		problems = append(problems, "id is empty")
	}
	if r.SourcePath == "" {
		problems = append(problems, "sourcePath is empty")
	}
	if r.FileName == "" {
		problems = append(problems, "fileName is empty")
	}
	if r.FileSize < 0 {
		problems = append(problems, fmt.Sprintf("fileSize %d is negative", r.FileSize))
	}
	if r.ReorgAttempts < 0 {
		problems = append(problems, fmt.Sprintf("reorgAttempts %d is negative", r.ReorgAttempts))
	}
	if !r.IndexingStatus.Valid() {
		problems = append(problems, fmt.Sprintf("unknown indexingStatus %q", r.IndexingStatus))
	}
	if !r.ReorgStatus.Valid() {
		problems = append(problems, fmt.Sprintf("unknown reorgStatus %q", string(r.ReorgStatus)))
	}

	switch r.IndexingStatus {
	case IndexingPending:
		if r.ReorgStatus != ReorgUnset {
			problems = append(problems, fmt.Sprintf("reorgStatus %s before indexing completed", r.ReorgStatus))
		}
	case IndexingFailed:
		if r.ReorgStatus != ReorgSkipped {
			problems = append(problems, fmt.Sprintf("reorgStatus %s after indexing failed, want SKIPPED", r.ReorgStatus))
		}
	case IndexingCompleted:
		if r.ReorgStatus == ReorgUnset || r.ReorgStatus == ReorgSkipped {
			problems = append(problems, fmt.Sprintf("reorgStatus %s after indexing completed", r.ReorgStatus))
		}
	}

	if r.DeletedFromSource && r.ReorgStatus != ReorgSuccess {
		problems = append(problems, fmt.Sprintf("deletedFromSource with reorgStatus %s", r.ReorgStatus))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %s", ErrInvalidRecord, r.ID, strings.Join(problems, "; "))
	}
	return nil
}
