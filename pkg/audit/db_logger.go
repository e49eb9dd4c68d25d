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

// DBLogger implements audit logging to a SQL database. Events become
// queryable through Search, which is what the audit API serves.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger. The
// audit_events table is created by the storage migration runner; the
// logger only reads and writes it.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts the event. The generated id is written back to the
// event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, event_type, status,
			principal, actor, resource_type, resource_id,
			permission, reason, request_id,
			message, error_message, metadata
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14
		)
	`
	_, err := l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.Status,
		event.Principal, event.Actor, event.ResourceType, event.ResourceID,
		event.Permission, event.Reason, event.RequestID,
		event.Message, event.ErrorMessage, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the logger does not own the database handle.
func (l *DBLogger) Close() error {
	return nil
}

// Search returns events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	var (
		conditions []string
		args       []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp < "+arg(*filter.EndTime))
	}
	if filter.Principal != "" {
		conditions = append(conditions, "principal = "+arg(filter.Principal))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = arg(string(et))
		}
		conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = "+arg(string(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = "+arg(filter.ResourceID))
	}

	query := `
		SELECT id, timestamp, event_type, status,
		       principal, actor, resource_type, resource_id,
		       permission, reason, request_id,
		       message, error_message, metadata
		FROM audit_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			event    Event
			metadata sql.NullString
		)
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.Principal, &event.Actor, &event.ResourceType, &event.ResourceID,
			&event.Permission, &event.Reason, &event.RequestID,
			&event.Message, &event.ErrorMessage, &metadata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode event metadata: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return events, nil
}

// Cleanup deletes events older than the retention window and returns
// how many were removed.
func (l *DBLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit events: %w", err)
	}
	return result.RowsAffected()
}
