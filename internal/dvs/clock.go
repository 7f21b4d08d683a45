package dvs

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies every timestamp the lifecycle writes: discovery, claim,
// completion and audit times.
type Clock interface {
	Now() time.Time
}

// RealClock is UTC wall time at millisecond precision, the finest every
// store backend round-trips.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// IDGenerator mints audit IDs for job executions.
type IDGenerator interface {
	New() string
}

// UUIDGenerator mints random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
