// Package config loads and validates vanmesh configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by VANMESH_* environment variables. The resulting
// Config is treated as immutable for the lifetime of the process; components
// receive the sections they need at construction time.
package config
