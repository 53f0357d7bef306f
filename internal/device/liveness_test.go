package device

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		age      time.Duration
		failures int
		want     Status
	}{
		{"fresh", 0, 0, StatusActive},
		{"just under inactive", 2*time.Minute - time.Second, 0, StatusActive},
		{"exactly inactive threshold", 2 * time.Minute, 0, StatusInactive},
		{"between thresholds", 3 * time.Minute, 0, StatusInactive},
		{"exactly removal threshold", 5 * time.Minute, 0, StatusRemoved},
		{"well past removal", time.Hour, 0, StatusRemoved},
		{"fresh but failing", 0, 3, StatusInactive},
		{"fresh under failure limit", 0, 2, StatusActive},
		{"stale and failing still removed", 6 * time.Minute, 5, StatusRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{LastSeen: now.Add(-tt.age), ConsecutiveFailures: tt.failures}
			if got := Classify(rec, now, th); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()
	if th.Inactive != 2*time.Minute {
		t.Errorf("Inactive = %v", th.Inactive)
	}
	if th.Removal != 5*time.Minute {
		t.Errorf("Removal = %v", th.Removal)
	}
	if th.FailureLimit != 3 {
		t.Errorf("FailureLimit = %d", th.FailureLimit)
	}
}
