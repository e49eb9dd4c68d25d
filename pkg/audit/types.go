package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"
	EventTypeCachePurge   EventType = "authz.cache_purge"

	// Assignment lifecycle events
	EventTypeAssignmentGrant  EventType = "assignment.grant"
	EventTypeAssignmentRevoke EventType = "assignment.revoke"

	// Catalog events
	EventTypeRoleCreate           EventType = "catalog.role_create"
	EventTypeRoleUpdate           EventType = "catalog.role_update"
	EventTypeRoleDelete           EventType = "catalog.role_delete"
	EventTypePermissionTypeCreate EventType = "catalog.permission_type_create"
	EventTypePermissionTypeDelete EventType = "catalog.permission_type_delete"
	EventTypeRolePermissionAdd    EventType = "catalog.role_permission_add"
	EventTypeRolePermissionRemove EventType = "catalog.role_permission_remove"

	// Hierarchy events
	EventTypeEntityCreate EventType = "hierarchy.entity_create"
	EventTypeEntityDelete EventType = "hierarchy.entity_delete"
)

// Status represents the outcome of an event
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// ResourceType represents the type of resource an event refers to
type ResourceType string

const (
	ResourceTypeEntity         ResourceType = "entity"
	ResourceTypeRole           ResourceType = "role"
	ResourceTypePermissionType ResourceType = "permission_type"
	ResourceTypeAssignment     ResourceType = "assignment"
	ResourceTypeCache          ResourceType = "cache"
)

// Event represents a single audit log entry
type Event struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Status    Status    `json:"status"`

	// Principal is the subject of the event: the principal whose
	// check was denied or whose assignment changed.
	Principal string `json:"principal,omitempty"`

	// Actor is the administrator who performed the operation, when
	// distinct from the principal.
	Actor string `json:"actor,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Permission and Reason are set on decision events. The reason is
	// deliberately recorded here and nowhere user-visible.
	Permission string `json:"permission,omitempty"`
	Reason     string `json:"reason,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, status Status) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	Principal  string
	EventTypes []EventType
	Status     *Status

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
