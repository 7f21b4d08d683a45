package dvs

import (
	"context"
	"errors"
	"net"
	"os"
)

var (
	// ErrDuplicate is returned when an insert collides with an existing unique key.
	// Callers treat it as "already recorded", never as a fatal error.
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotFound is returned by updates that target a record which does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned by conditional updates whose expected version no
	// longer matches the stored record.
	ErrConflict = errors.New("record was modified concurrently")

	// ErrJobFinalized is returned for any write to a job execution after its
	// final status has been set.
	ErrJobFinalized = errors.New("job execution already finalized")

	// ErrInvalidRecord wraps validation failures detected before a write.
	ErrInvalidRecord = errors.New("invalid record")
)

// IsTransient reports whether err is a retryable I/O failure (timeouts and
// deadlines). Cancellation is not transient: a cancelled job stops.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
