package dvs_test

import (
	"errors"
	"testing"

	"dvsmart-go/internal/dvs"
)

func TestValidateReorgTransition(t *testing.T) {
	all := []dvs.ReorgStatus{
		dvs.ReorgUnset, dvs.ReorgPending, dvs.ReorgProcessing,
		dvs.ReorgSuccess, dvs.ReorgFailed, dvs.ReorgSkipped,
	}
	allowed := map[[2]dvs.ReorgStatus]bool{
		{dvs.ReorgUnset, dvs.ReorgPending}:      true,
		{dvs.ReorgUnset, dvs.ReorgSkipped}:      true,
		{dvs.ReorgPending, dvs.ReorgProcessing}: true,
		{dvs.ReorgProcessing, dvs.ReorgSuccess}: true,
		{dvs.ReorgProcessing, dvs.ReorgFailed}:  true,
		{dvs.ReorgProcessing, dvs.ReorgPending}: true,
		{dvs.ReorgFailed, dvs.ReorgPending}:     true,
		{dvs.ReorgSuccess, dvs.ReorgPending}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			err := dvs.ValidateReorgTransition(from, to)
			want := allowed[[2]dvs.ReorgStatus{from, to}]
			if want && err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, to, err)
			}
			if !want {
				var te *dvs.TransitionError
				if !errors.As(err, &te) {
					t.Errorf("%s -> %s: error = %v, want *TransitionError", from, to, err)
					continue
				}
				if te.Code != "INVALID_TRANSITION" {
					t.Errorf("%s -> %s: code = %q, want INVALID_TRANSITION", from, to, te.Code)
				}
			}
		}
	}
}

func TestValidateReorgTransition_UnknownStatus(t *testing.T) {
	err := dvs.ValidateReorgTransition(dvs.ReorgPending, dvs.ReorgStatus("DONE"))
	var te *dvs.TransitionError
	if !errors.As(err, &te) || te.Code != "UNKNOWN_STATUS" {
		t.Errorf("error = %v, want UNKNOWN_STATUS", err)
	}
}

func TestSkippedIsTerminal(t *testing.T) {
	for _, to := range []dvs.ReorgStatus{dvs.ReorgPending, dvs.ReorgProcessing, dvs.ReorgSuccess, dvs.ReorgFailed} {
		if err := dvs.ValidateReorgTransition(dvs.ReorgSkipped, to); err == nil {
			t.Errorf("SKIPPED -> %s should be rejected", to)
		}
	}
	if !dvs.ReorgSkipped.IsTerminal() {
		t.Error("SKIPPED should be terminal")
	}
}

func TestParseReorgStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    dvs.ReorgStatus
		wantErr bool
	}{
		{"", dvs.ReorgUnset, false},
		{"PENDING", dvs.ReorgPending, false},
		{"SUCCESS", dvs.ReorgSuccess, false},
		{"COMPLETED", dvs.ReorgSuccess, false},
		{"SKIPPED", dvs.ReorgSkipped, false},
		{"pending", "", true},
		{"DONE", "", true},
	}
	for _, tt := range tests {
		got, err := dvs.ParseReorgStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseReorgStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseReorgStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReorgStatus_String(t *testing.T) {
	if got := dvs.ReorgUnset.String(); got != "UNSET" {
		t.Errorf("String() = %q, want UNSET", got)
	}
	if got := dvs.ReorgFailed.String(); got != "FAILED" {
		t.Errorf("String() = %q, want FAILED", got)
	}
}

func TestJobStatus_IsFinal(t *testing.T) {
	final := map[dvs.JobStatus]bool{
		dvs.JobStarting:  false,
		dvs.JobStarted:   false,
		dvs.JobStopping:  false,
		dvs.JobCompleted: true,
		dvs.JobFailed:    true,
		dvs.JobStopped:   true,
	}
	for s, want := range final {
		if got := s.IsFinal(); got != want {
			t.Errorf("%s.IsFinal() = %v, want %v", s, got, want)
		}
	}
}
