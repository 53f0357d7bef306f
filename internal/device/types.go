package device

import (
	"net"
	"strconv"
	"time"
)

// Record is the presence entry for a single registered device.
//
// Records are owned exclusively by the Registry; callers only ever receive
// copies. Status is never stored on the record, it is always derived from
// LastSeen age and the failure counter via Classify.
type Record struct {
	// ID is the stable, caller-supplied device identifier.
	ID string `json:"id"`

	// Type classifies the device (e.g. "rear-camera") and is subject to a
	// per-type population quota.
	Type string `json:"device_type"`

	// Address and Port form the endpoint at which the device accepts
	// forwarded commands.
	Address string `json:"address"`
	Port    int    `json:"port"`

	// CreatedAt is set once, at first successful registration.
	CreatedAt time.Time `json:"created_at"`

	// LastSeen is updated on every successful heartbeat. It never moves
	// backwards for a given ID.
	LastSeen time.Time `json:"last_seen"`

	// ConsecutiveFailures counts forwarded commands that failed to reach the
	// device since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// Endpoint returns the host:port address for forwarding commands.
func (r *Record) Endpoint() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// Snapshot pairs a record copy with its status as derived at snapshot time.
// Listings return snapshots so callers see a consistent record+status pair.
type Snapshot struct {
	Record
	Status Status `json:"status"`
}

// Filter controls which records a List call returns.
type Filter struct {
	// Type restricts results to one device type. Empty matches all types.
	Type string

	// ActiveOnly excludes records not currently classified Active.
	ActiveOnly bool
}

// Stats summarises the registry for health and monitoring endpoints.
type Stats struct {
	TotalDevices    int            `json:"total_devices"`
	ActiveDevices   int            `json:"active_devices"`
	InactiveDevices int            `json:"inactive_devices"`
	DevicesByType   map[string]int `json:"devices_by_type"`
	TypeQuotas      map[string]int `json:"type_quotas"`
}
