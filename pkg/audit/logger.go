package audit

import (
	"context"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// NopLogger returns a logger that discards all events.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (nopLogger) Close() error                                { return nil }

// GrantEvent builds the event recorded when an assignment is created.
func GrantEvent(principal, actor, assignmentID string, deny bool) *Event {
	event := NewEvent(EventTypeAssignmentGrant, StatusSuccess)
	event.Principal = principal
	event.Actor = actor
	event.ResourceType = ResourceTypeAssignment
	event.ResourceID = assignmentID
	event.Metadata["is_deny"] = deny
	return event
}

// RevokeEvent builds the event recorded when an assignment is revoked.
func RevokeEvent(principal, actor, assignmentID, reason string) *Event {
	event := NewEvent(EventTypeAssignmentRevoke, StatusSuccess)
	event.Principal = principal
	event.Actor = actor
	event.ResourceType = ResourceTypeAssignment
	event.ResourceID = assignmentID
	if reason != "" {
		event.Metadata["revoke_reason"] = reason
	}
	return event
}

// CatalogEvent builds the event recorded for a catalog change.
func CatalogEvent(eventType EventType, actor string, resourceType ResourceType, resourceID, message string) *Event {
	event := NewEvent(eventType, StatusSuccess)
	event.Actor = actor
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return event
}
