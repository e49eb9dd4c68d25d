package authz

import (
	"encoding/json"
	"fmt"
	"time"
)

// PrincipalID identifies the user or service a check is evaluated for.
// Principals are authenticated upstream; this package only ever sees
// the resolved identifier.
type PrincipalID string

// EntityID identifies a node in the platform's hierarchical object
// graph. The hierarchy itself is owned by the ontology store; the
// kernel only reads ancestor chains by id.
type EntityID string

// RoleID identifies a role in the catalog.
type RoleID string

// PermissionTypeID identifies a permission type in the catalog.
type PermissionTypeID string

// AssignmentID identifies a single role assignment row.
type AssignmentID string

// Permission is the named capability being checked (e.g. "read",
// "write", "administer"). Checks are by name; the catalog's numeric
// level is a UI ordering hint and never affects decisions.
type Permission string

// Reason explains a Decision. It is a closed set so call sites that
// branch on reasons are exhaustively checkable.
type Reason int

const (
	// ReasonAllowedByRole means at least one active grant matched and
	// no denial did.
	ReasonAllowedByRole Reason = iota
	// ReasonDeniedExplicitly means an active deny assignment matched;
	// deny beats allow regardless of creation order.
	ReasonDeniedExplicitly
	// ReasonNoGrant means no assignment grants the permission at all.
	ReasonNoGrant
	// ReasonOutOfScope means granting assignments exist but none are
	// scoped to the entity or one of its ancestors.
	ReasonOutOfScope
	// ReasonExpired means an in-scope granting assignment exists but
	// its time window or schedule excludes now.
	ReasonExpired
)

// String returns the wire/log representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonAllowedByRole:
		return "allowed_by_role"
	case ReasonDeniedExplicitly:
		return "denied_explicitly"
	case ReasonNoGrant:
		return "no_grant"
	case ReasonOutOfScope:
		return "out_of_scope"
	case ReasonExpired:
		return "expired"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// MarshalJSON encodes the reason as its string form.
func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a reason from its string form.
func (r *Reason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "allowed_by_role":
		*r = ReasonAllowedByRole
	case "denied_explicitly":
		*r = ReasonDeniedExplicitly
	case "no_grant":
		*r = ReasonNoGrant
	case "out_of_scope":
		*r = ReasonOutOfScope
	case "expired":
		*r = ReasonExpired
	default:
		return fmt.Errorf("unknown decision reason %q", s)
	}
	return nil
}

// Assignment binds a principal to a role, optionally scoped to an
// entity subtree, optionally time-bounded, optionally recurring, and
// optionally inverted into an explicit denial.
type Assignment struct {
	ID        AssignmentID `json:"id"`
	Principal PrincipalID  `json:"principal_id"`
	Role      RoleID       `json:"role_id"`

	// Scope restricts the assignment to the entity and its
	// descendants. A nil scope makes the assignment global.
	Scope *EntityID `json:"scope_entity_id,omitempty"`

	// ValidFrom (inclusive) and ValidUntil (exclusive) bound when the
	// assignment is active; nil means unbounded on that side.
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	// Schedule is an optional cron expression further restricting the
	// active window (e.g. business hours). Empty means always-on
	// within the from/until window.
	Schedule string `json:"schedule_cron,omitempty"`

	// Deny inverts the assignment: when true it revokes the role's
	// permissions within its scope and window instead of granting
	// them, and takes precedence over any conflicting grant.
	Deny bool `json:"is_deny"`

	GrantedBy *PrincipalID `json:"granted_by,omitempty"`
	GrantedAt time.Time    `json:"granted_at"`

	// Revocation is soft: the row is kept for audit with the end
	// marker set.
	RevokedAt    *time.Time   `json:"revoked_at,omitempty"`
	RevokedBy    *PrincipalID `json:"revoked_by,omitempty"`
	RevokeReason string       `json:"revoke_reason,omitempty"`
}

// ActiveAt reports whether the assignment contributes to decisions at
// the given instant. Revoked assignments never do. An unparseable
// stored schedule makes the assignment inactive (fail closed);
// schedules are validated at assign time, so this only happens on
// data corruption.
func (a *Assignment) ActiveAt(now time.Time) bool {
	if a.RevokedAt != nil && !a.RevokedAt.After(now) {
		return false
	}
	if a.ValidFrom != nil && now.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && !now.Before(*a.ValidUntil) {
		return false
	}
	if a.Schedule != "" {
		sched, err := ParseSchedule(a.Schedule)
		if err != nil {
			return false
		}
		return sched.Matches(now)
	}
	return true
}

// Decision is the computed outcome of a permission check. It is never
// persisted; every decision is explainable from the assignments that
// produced it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`

	// Primary is the narrowest-scope assignment responsible for the
	// outcome: the narrowest matching denial when denied explicitly,
	// the narrowest matching grant when allowed, nil otherwise.
	// Narrowness affects only this report, never the outcome.
	Primary *Assignment `json:"primary,omitempty"`

	// Matched lists every assignment that survived scope, temporal,
	// and role-expansion filtering, denials first.
	Matched []Assignment `json:"matched,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// CheckRequest is one (entity, permission) pair of a batch check.
type CheckRequest struct {
	Entity     EntityID   `json:"entity_id"`
	Permission Permission `json:"permission"`
}

// CheckResult is the per-pair outcome of a batch check.
type CheckResult struct {
	Entity     EntityID   `json:"entity_id"`
	Permission Permission `json:"permission"`
	Allowed    bool       `json:"allowed"`
}
