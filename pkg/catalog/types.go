package catalog

import (
	"time"

	"github.com/ontoserve/warden/pkg/authz"
)

// PermissionType is a named capability in the catalog. Level is a
// coarseness hint for admin UIs (higher means more privileged); the
// engine matches permissions strictly by name.
type PermissionType struct {
	ID          authz.PermissionTypeID `json:"id"`
	Name        authz.Permission       `json:"name"`
	Description string                 `json:"description,omitempty"`
	Level       int                    `json:"level"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Role is a named bundle of permissions. Level orders roles for
// admin listings; like PermissionType.Level it never affects
// decisions.
type Role struct {
	ID          authz.RoleID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Level       int          `json:"level"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
}

// RolePermission records that a role grants a permission type, and
// when the mapping was added.
type RolePermission struct {
	RoleID     authz.RoleID   `json:"role_id"`
	Permission PermissionType `json:"permission"`
	GrantedAt  time.Time      `json:"granted_at"`
}
