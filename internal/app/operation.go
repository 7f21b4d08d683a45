package app

import (
	"fmt"
	"strings"

	"dvsmart-go/internal/dvs"
)

// Operation describes one CLI command that runs inside its own audited job
// execution. A zero Phases list runs the full lifecycle.
type Operation struct {
	JobName string
	Phases  []dvs.Phase
}

// NewOperation creates an operation. For single-phase commands the job name
// is the phase name.
func NewOperation(jobName string, phases ...dvs.Phase) Operation {
	return Operation{JobName: jobName, Phases: phases}
}

// PhaseOperation is the operation of a single-phase command such as
// `dvsmart index`.
func PhaseOperation(p dvs.Phase) Operation {
	return NewOperation(string(p), p)
}

// Full reports whether the operation runs every phase.
func (op Operation) Full() bool {
	return len(op.Phases) == 0
}

// Includes reports whether the operation runs phase p.
func (op Operation) Includes(p dvs.Phase) bool {
	if op.Full() {
		return true
	}
	for _, q := range op.Phases {
		if q == p {
			return true
		}
	}
	return false
}

// ParsePhases parses a comma-separated phase list such as "discover,index".
// Duplicates are rejected and the phases are returned in lifecycle order.
func ParsePhases(s string) ([]dvs.Phase, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	seen := make(map[dvs.Phase]bool)
	for _, name := range strings.Split(s, ",") {
		p, ok := dvs.ParsePhase(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown phase %q", name)
		}
		if seen[p] {
			return nil, fmt.Errorf("phase %q given twice", name)
		}
		seen[p] = true
	}

	var phases []dvs.Phase
	for _, p := range dvs.AllPhases {
		if seen[p] {
			phases = append(phases, p)
		}
	}
	return phases, nil
}
