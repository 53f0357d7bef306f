package device

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Registry.
type Options struct {
	// Quotas maps each recognised device type to its maximum concurrently
	// registered population. A type absent from the map is rejected.
	Quotas map[string]int

	// Thresholds are the liveness classification parameters.
	Thresholds Thresholds

	// ResetFailuresOnHeartbeat clears the consecutive failure counter on a
	// successful heartbeat, not only on a successful forwarded command.
	ResetFailuresOnHeartbeat bool

	// Clock overrides the time source, for tests. Defaults to time.Now.
	Clock func() time.Time
}

// Registry is the single source of truth for device presence.
//
// All records live in memory behind one read-write mutex; the registry is
// intentionally ephemeral and starts empty on process restart. Mutations
// (Upsert, RecordFailure, RecordSuccess, Remove, Sweep) are serialised with
// respect to each other, which makes the quota check-and-insert inside
// Upsert atomic. Reads return copies, never references into the map.
//
// All public methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	quotas           map[string]int
	thresholds       Thresholds
	resetOnHeartbeat bool
	now              func() time.Time

	logger Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry(opts Options) *Registry {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	quotas := make(map[string]int, len(opts.Quotas))
	for deviceType, quota := range opts.Quotas {
		quotas[deviceType] = quota
	}

	return &Registry{
		records:          make(map[string]*Record),
		quotas:           quotas,
		thresholds:       opts.Thresholds,
		resetOnHeartbeat: opts.ResetFailuresOnHeartbeat,
		now:              now,
		logger:           noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Thresholds returns the liveness classification parameters in use.
func (r *Registry) Thresholds() Thresholds {
	return r.thresholds
}

// Upsert registers a device or refreshes its heartbeat.
//
// For an existing ID the type, address, and port are updated, LastSeen moves
// forward (never backward), and no quota check is performed: a device that is
// already in never loses its slot to its own heartbeat. A new ID is admitted
// only if its type's quota has a free slot; the count-and-insert happens
// under the write lock so two racing registrations cannot both take the last
// slot.
//
// Returns created=true when a new record was admitted.
func (r *Registry) Upsert(id, deviceType, address string, port int) (created bool, err error) {
	if err := ValidateRegistration(id, address, port); err != nil {
		return false, err
	}

	quota, known := r.quotas[deviceType]
	if !known {
		return false, fmt.Errorf("%w: %q", ErrUnknownType, deviceType)
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		rec.Type = deviceType
		rec.Address = address
		rec.Port = port
		if now.After(rec.LastSeen) {
			rec.LastSeen = now
		}
		if r.resetOnHeartbeat {
			rec.ConsecutiveFailures = 0
		}
		r.logger.Debug("device heartbeat", "id", id, "device_type", deviceType)
		return false, nil
	}

	count := r.countByTypeLocked(deviceType)
	if count >= quota {
		r.logger.Warn("registration rejected, quota exceeded",
			"id", id,
			"device_type", deviceType,
			"current", count,
			"quota", quota,
		)
		return false, fmt.Errorf("%w: %q has %d of %d slots in use",
			ErrQuotaExceeded, deviceType, count, quota)
	}

	r.records[id] = &Record{
		ID:        id,
		Type:      deviceType,
		Address:   address,
		Port:      port,
		CreatedAt: now,
		LastSeen:  now,
	}

	r.logger.Info("device registered",
		"id", id,
		"device_type", deviceType,
		"address", address,
		"port", port,
	)
	return true, nil
}

// Get returns a copy of a device record.
//
// A record that has aged past the removal threshold is reported as absent
// even if the sweeper has not evicted it yet.
func (r *Registry) Get(id string) (*Record, error) {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || Classify(rec, now, r.thresholds) == StatusRemoved {
		return nil, ErrNotFound
	}

	cpy := *rec
	return &cpy, nil
}

// Status derives the current liveness of a record copy.
func (r *Registry) Status(rec *Record) Status {
	return Classify(rec, r.now(), r.thresholds)
}

// List returns a point-in-time snapshot of records matching the filter,
// sorted by ID. Records past the removal threshold are excluded.
func (r *Registry) List(filter Filter) []Snapshot {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(r.records))
	for _, rec := range r.records {
		status := Classify(rec, now, r.thresholds)
		if status == StatusRemoved {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && status != StatusActive {
			continue
		}
		snapshots = append(snapshots, Snapshot{Record: *rec, Status: status})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

// RecordFailure increments a device's consecutive failure counter after a
// forwarded command failed to reach it. Returns the new count.
//
// Once the count reaches the failure limit the device classifies Inactive
// immediately, regardless of heartbeat age.
func (r *Registry) RecordFailure(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return 0, ErrNotFound
	}

	rec.ConsecutiveFailures++
	if rec.ConsecutiveFailures == r.thresholds.FailureLimit {
		r.logger.Warn("device demoted to inactive after repeated failures",
			"id", id,
			"failures", rec.ConsecutiveFailures,
		)
	}
	return rec.ConsecutiveFailures, nil
}

// RecordSuccess resets a device's consecutive failure counter after a
// forwarded command was acknowledged.
func (r *Registry) RecordSuccess(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	rec.ConsecutiveFailures = 0
	return nil
}

// Remove deletes a record unconditionally, freeing its type quota slot.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	delete(r.records, id)
	r.logger.Info("device removed", "id", id, "device_type", rec.Type)
	return nil
}

// Sweep evicts every record past the removal threshold and returns copies
// of the evicted records. It is idempotent; a sweep that finds nothing to
// do returns an empty slice.
func (r *Registry) Sweep() []Record {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Record
	for id, rec := range r.records {
		if Classify(rec, now, r.thresholds) != StatusRemoved {
			continue
		}
		evicted = append(evicted, *rec)
		delete(r.records, id)
		r.logger.Info("device evicted",
			"id", id,
			"device_type", rec.Type,
			"last_seen", rec.LastSeen,
		)
	}
	return evicted
}

// Count returns the number of records currently held, including records
// awaiting eviction.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// GetStats returns registry statistics for the health and stats endpoints.
// Records past the removal threshold are not counted.
func (r *Registry) GetStats() Stats {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		DevicesByType: make(map[string]int),
		TypeQuotas:    make(map[string]int, len(r.quotas)),
	}
	for deviceType, quota := range r.quotas {
		stats.TypeQuotas[deviceType] = quota
	}

	for _, rec := range r.records {
		status := Classify(rec, now, r.thresholds)
		if status == StatusRemoved {
			continue
		}
		stats.TotalDevices++
		stats.DevicesByType[rec.Type]++
		if status == StatusActive {
			stats.ActiveDevices++
		} else {
			stats.InactiveDevices++
		}
	}
	return stats
}

// countByTypeLocked counts records of a device type. Caller must hold the lock.
func (r *Registry) countByTypeLocked(deviceType string) int {
	count := 0
	for _, rec := range r.records {
		if rec.Type == deviceType {
			count++
		}
	}
	return count
}
