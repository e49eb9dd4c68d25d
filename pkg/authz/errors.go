package authz

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the kernel and its stores. Stores wrap
// these with context via fmt.Errorf("...: %w", ...) so callers can
// branch with errors.Is while logs keep the detail.
var (
	// ErrNotFound marks a reference to an unknown role, permission
	// type, entity, or assignment.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks caller mistakes: empty identifiers,
	// malformed time windows, unparseable schedules.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict marks an operation refused because of existing
	// state, such as deleting a permission type that roles still
	// reference.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateAssignment is returned when an identical active
	// (principal, role, scope, deny) assignment already exists.
	// Duplicates are rejected, not upserted.
	ErrDuplicateAssignment = fmt.Errorf("duplicate active assignment: %w", ErrConflict)

	// ErrCycleDetected indicates a cycle in the entity hierarchy. The
	// hierarchy provider forbids cycles upstream, so seeing this means
	// data corruption; the request fails closed and the error is
	// surfaced loudly rather than silently denied.
	ErrCycleDetected = errors.New("hierarchy cycle detected")

	// ErrPermissionDenied is the sentinel matched by
	// PermissionDeniedError via errors.Is.
	ErrPermissionDenied = errors.New("permission denied")
)

// PermissionDeniedError is the failure returned by RequirePermission.
// The embedded reason is for audit logs and administrators; route
// layers must map this to a generic forbidden response and never
// disclose the reason to the caller.
type PermissionDeniedError struct {
	Principal  PrincipalID
	Entity     EntityID
	Permission Permission
	Reason     Reason
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission %q denied for principal %s on entity %s: %s",
		e.Permission, e.Principal, e.Entity, e.Reason)
}

// Is makes errors.Is(err, ErrPermissionDenied) succeed.
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}
