// Package database provides the SQLite connection used to persist the
// device event history. The registry itself is in-memory only; the
// database records registrations, evictions, and command outcomes for
// after-the-fact inspection.
package database
