// Package device implements the in-memory device presence registry.
//
// Devices announce themselves over HTTP and keep their registration alive
// with periodic heartbeats. The registry holds one record per device ID,
// enforces a per-type quota at admission, and derives each device's
// liveness (active, inactive, removed) from heartbeat age and consecutive
// command failures at read time. Status is never stored.
//
// A Sweeper runs alongside the registry and evicts records whose heartbeat
// age has passed the removal threshold, freeing their quota slots.
package device
