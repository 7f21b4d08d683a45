package dvs

import (
	"context"
	"time"
)

// Phase names one step of the lifecycle.
type Phase string

const (
	PhaseDiscover   Phase = "discover"
	PhaseIndex      Phase = "index"
	PhaseRecover    Phase = "recover"
	PhaseRequeue    Phase = "requeue"
	PhaseReorganize Phase = "reorganize"
	PhaseCleanup    Phase = "cleanup"
)

// AllPhases is the order a full run executes phases in.
var AllPhases = []Phase{PhaseDiscover, PhaseIndex, PhaseRecover, PhaseRequeue, PhaseReorganize, PhaseCleanup}

// ParsePhase converts a phase name into a Phase.
func ParsePhase(s string) (Phase, bool) {
	for _, p := range AllPhases {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Per-file outcomes reported to Metrics.
const (
	OutcomeInserted   = "inserted"
	OutcomeUnchanged  = "unchanged"
	OutcomeReappeared = "reappeared"
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeDeferred   = "deferred"
	OutcomeLost       = "lost"
)

// Metrics receives lifecycle observations.
type Metrics interface {
	ObservePhase(phase Phase, outcome string)
	ObserveReorgDuration(d time.Duration)
	ObserveJob(status JobStatus, d time.Duration, filesPerSecond float64)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObservePhase(Phase, string)                   {}
func (NopMetrics) ObserveReorgDuration(time.Duration)           {}
func (NopMetrics) ObserveJob(JobStatus, time.Duration, float64) {}

// EventType names a lifecycle event.
type EventType string

const (
	EventJobStarted      EventType = "job.started"
	EventJobFinished     EventType = "job.finished"
	EventFileReorganized EventType = "file.reorganized"
	EventFileFailed      EventType = "file.failed"
	EventFileDeleted     EventType = "file.deleted"
)

// Event is a lifecycle notification for downstream consumers.
type Event struct {
	Type           EventType `json:"type"`
	AuditID        string    `json:"auditId,omitempty"`
	JobExecutionID int64     `json:"jobExecutionId"`
	FileID         string    `json:"fileId,omitempty"`
	Status         string    `json:"status"`
	Path           string    `json:"path,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// EventPublisher delivers lifecycle events. Delivery failures are logged by
// the caller and never fail a lifecycle transition.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
