// Package audit records device lifecycle events in the device_events
// table for after-the-fact inspection: who registered, what was evicted,
// which commands were sent and how they fared.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the event history.
const (
	ActionRegistered    = "registered"
	ActionHeartbeat     = "heartbeat"
	ActionEvicted       = "evicted"
	ActionRemoved       = "removed"
	ActionCommandSent   = "command_sent"
	ActionCommandFailed = "command_failed"
)

// Event represents a single device history entry.
type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	DeviceID   string         `json:"device_id,omitempty"`
	DeviceType string         `json:"device_type,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which events to return.
type Filter struct {
	Action     string // optional: filter by action
	DeviceID   string // optional: filter by device
	DeviceType string // optional: filter by device type
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains paginated event results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the interface for event history operations.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores device events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new event history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new event. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()[:8]
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if event.Details != nil {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_events (id, action, device_id, device_type, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Action,
		nullableString(event.DeviceID), nullableString(event.DeviceType),
		event.Source, detailsJSON,
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device event: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.DeviceType != "" {
		conditions = append(conditions, "device_type = ?")
		args = append(args, filter.DeviceType)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions, never user input.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM device_events %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting device events: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, action, device_id, device_type, source, details, created_at FROM device_events %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var deviceID, deviceType, detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&event.ID, &event.Action,
			&deviceID, &deviceType, &event.Source, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device event: %w", err)
		}

		if deviceID.Valid {
			event.DeviceID = deviceID.String
		}
		if deviceType.Valid {
			event.DeviceType = deviceType.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				event.Details = details
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		event.CreatedAt = t

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
