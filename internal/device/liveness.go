package device

import "time"

// Status is the derived liveness classification of a record.
type Status string

// Status constants.
const (
	// StatusActive means the device heartbeated recently and is reachable.
	StatusActive Status = "active"

	// StatusInactive means the device missed heartbeats or accumulated too
	// many consecutive forwarding failures. It remains visible in listings
	// but commands are not forwarded to it.
	StatusInactive Status = "inactive"

	// StatusRemoved means the record has aged past the removal threshold.
	// Read paths treat such records as absent; the sweeper deletes them.
	StatusRemoved Status = "removed"
)

// Thresholds holds the liveness classification parameters.
type Thresholds struct {
	// Inactive is the heartbeat age past which a device is inactive.
	Inactive time.Duration

	// Removal is the heartbeat age past which a record should be evicted.
	Removal time.Duration

	// FailureLimit is the consecutive forwarding failure count at which a
	// device is classified inactive regardless of heartbeat age.
	FailureLimit int
}

// DefaultThresholds returns the documented default classification parameters:
// inactive after 2 minutes, removed after 5, inactive after 3 consecutive
// forwarding failures.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Inactive:     2 * time.Minute,
		Removal:      5 * time.Minute,
		FailureLimit: 3,
	}
}

// Classify derives a record's status from its last-seen age and failure count.
//
// It is a pure function: identical inputs always yield identical outputs.
// Failure-based demotion takes effect only while the record is within the
// inactive window; past the removal threshold the record is Removed no
// matter what the counter says.
func Classify(rec *Record, now time.Time, th Thresholds) Status {
	age := now.Sub(rec.LastSeen)

	switch {
	case age >= th.Removal:
		return StatusRemoved
	case age < th.Inactive && rec.ConsecutiveFailures < th.FailureLimit:
		return StatusActive
	default:
		return StatusInactive
	}
}
