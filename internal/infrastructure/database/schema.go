package database

import (
	"context"
	"fmt"
)

// schemaMigrations are applied in order on startup. The index into this
// slice plus one is the schema version stored in SQLite's user_version
// pragma, so append only, never reorder or edit an applied entry.
var schemaMigrations = []string{
	`CREATE TABLE IF NOT EXISTS device_events (
		id          TEXT PRIMARY KEY,
		action      TEXT NOT NULL,
		device_id   TEXT,
		device_type TEXT,
		source      TEXT NOT NULL,
		details     TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_device_events_device_id ON device_events(device_id);
	CREATE INDEX IF NOT EXISTS idx_device_events_action ON device_events(action);
	CREATE INDEX IF NOT EXISTS idx_device_events_created_at ON device_events(created_at);`,
}

// Migrate brings the schema up to the current version. Each pending
// migration runs in its own transaction; a failure leaves earlier
// migrations committed and re-running continues from the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version > len(schemaMigrations) {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)",
			version, len(schemaMigrations))
	}

	for i := version; i < len(schemaMigrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting migration %d: %w", i+1, err)
		}

		if _, err := tx.ExecContext(ctx, schemaMigrations[i]); err != nil {
			tx.Rollback() //nolint:errcheck // Error path, rollback is best effort
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}

		// PRAGMA does not accept placeholders.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback() //nolint:errcheck // Error path, rollback is best effort
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
	}

	return nil
}

// SchemaVersion returns the applied schema version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
