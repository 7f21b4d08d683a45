package dvs

import "fmt"

// IndexingStatus is the outcome of the indexing phase for a file record.
type IndexingStatus string

const (
	IndexingPending   IndexingStatus = "PENDING"
	IndexingCompleted IndexingStatus = "COMPLETED"
	IndexingFailed    IndexingStatus = "FAILED"
)

// Valid reports whether s is one of the known indexing statuses.
func (s IndexingStatus) Valid() bool {
	switch s {
	case IndexingPending, IndexingCompleted, IndexingFailed:
		return true
	}
	return false
}

// ReorgStatus is the position of a file record in the reorganization phase.
// The zero value means the record has not been indexed yet.
type ReorgStatus string

const (
	ReorgUnset      ReorgStatus = ""
	ReorgPending    ReorgStatus = "PENDING"
	ReorgProcessing ReorgStatus = "PROCESSING"
	ReorgSuccess    ReorgStatus = "SUCCESS"
	ReorgFailed     ReorgStatus = "FAILED"
	ReorgSkipped    ReorgStatus = "SKIPPED"
)

// legacyReorgCompleted is the terminal success tag older schema versions wrote.
const legacyReorgCompleted = "COMPLETED"

// ParseReorgStatus converts a persisted value into a ReorgStatus.
// The legacy "COMPLETED" tag is read as ReorgSuccess.
func ParseReorgStatus(s string) (ReorgStatus, error) {
	if s == legacyReorgCompleted {
		return ReorgSuccess, nil
	}
	status := ReorgStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown reorg status: %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the known reorg statuses (unset included).
func (s ReorgStatus) Valid() bool {
	switch s {
	case ReorgUnset, ReorgPending, ReorgProcessing, ReorgSuccess, ReorgFailed, ReorgSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves s.
// FAILED is terminal until the retry policy requeues it.
func (s ReorgStatus) IsTerminal() bool {
	return s == ReorgSuccess || s == ReorgFailed || s == ReorgSkipped
}

// String renders the unset status as "UNSET" for logs and CLI output.
func (s ReorgStatus) String() string {
	if s == ReorgUnset {
		return "UNSET"
	}
	return string(s)
}

// validReorgTransitions is the complete transition matrix for ReorgStatus.
// SUCCESS -> PENDING only happens when a deleted source file reappears.
var validReorgTransitions = map[ReorgStatus]map[ReorgStatus]bool{
	ReorgUnset:      {ReorgPending: true, ReorgSkipped: true},
	ReorgPending:    {ReorgProcessing: true},
	ReorgProcessing: {ReorgSuccess: true, ReorgFailed: true, ReorgPending: true},
	ReorgFailed:     {ReorgPending: true},
	ReorgSuccess:    {ReorgPending: true},
	ReorgSkipped:    {},
}

// TransitionError describes a rejected state transition.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return e.Message
}

// ValidateReorgTransition returns a *TransitionError when from -> to is not allowed.
func ValidateReorgTransition(from, to ReorgStatus) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{
			Code:    "UNKNOWN_STATUS",
			Message: fmt.Sprintf("unknown reorg status in transition %s -> %s", from, to),
		}
	}
	if !validReorgTransitions[from][to] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("reorg transition %s -> %s is not allowed", from, to),
		}
	}
	return nil
}

// JobStatus is the state of a job execution audit record.
type JobStatus string

const (
	JobStarting  JobStatus = "STARTING"
	JobStarted   JobStatus = "STARTED"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobStopping  JobStatus = "STOPPING"
	JobStopped   JobStatus = "STOPPED"
)

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStarting, JobStarted, JobCompleted, JobFailed, JobStopping, JobStopped:
		return true
	}
	return false
}

// IsFinal reports whether s ends a job execution.
func (s JobStatus) IsFinal() bool {
	return s == JobCompleted || s == JobFailed || s == JobStopped
}

// FinalJobStatuses lists the statuses after which a job record is immutable.
var FinalJobStatuses = []JobStatus{JobCompleted, JobFailed, JobStopped}

// StepStatus is the outcome of one step of a job execution.
type StepStatus string

const (
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepStopped   StepStatus = "STOPPED"
)
