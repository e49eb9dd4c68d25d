package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ontoserve/warden/pkg/authz"
)

// ErrPermissionTypeInUse and ErrRoleInUse refuse deletions that would
// orphan references. Both match authz.ErrConflict via errors.Is.
var (
	ErrPermissionTypeInUse = fmt.Errorf("permission type is referenced by roles: %w", authz.ErrConflict)
	ErrRoleInUse           = fmt.Errorf("role has active assignments: %w", authz.ErrConflict)
)

// Store handles catalog persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new catalog store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePermissionType creates a permission type. ID and CreatedAt
// are filled in.
func (s *Store) CreatePermissionType(ctx context.Context, pt *PermissionType) error {
	if strings.TrimSpace(string(pt.Name)) == "" {
		return fmt.Errorf("permission type name is required: %w", authz.ErrInvalidInput)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM permission_types WHERE name = $1)", pt.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check permission type name: %w", err)
	}
	if exists {
		return fmt.Errorf("permission type %q already exists: %w", pt.Name, authz.ErrInvalidInput)
	}

	pt.ID = authz.PermissionTypeID(uuid.New().String())
	pt.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO permission_types (id, name, description, level, created_at) VALUES ($1, $2, $3, $4, $5)",
		pt.ID, pt.Name, pt.Description, pt.Level, pt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create permission type: %w", err)
	}
	return nil
}

// GetPermissionType retrieves a permission type by ID
func (s *Store) GetPermissionType(ctx context.Context, id authz.PermissionTypeID) (*PermissionType, error) {
	var pt PermissionType
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, level, created_at FROM permission_types WHERE id = $1", id).
		Scan(&pt.ID, &pt.Name, &pt.Description, &pt.Level, &pt.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission type %s: %w", id, authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission type: %w", err)
	}
	return &pt, nil
}

// ListPermissionTypes returns all permission types, most privileged
// first.
func (s *Store) ListPermissionTypes(ctx context.Context) ([]PermissionType, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, level, created_at FROM permission_types ORDER BY level DESC, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list permission types: %w", err)
	}
	defer rows.Close()

	var types []PermissionType
	for rows.Next() {
		var pt PermissionType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.Level, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission type: %w", err)
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}

// UpdatePermissionType updates description and level. The name is
// immutable: assignments resolve by permission name, so renames would
// silently change decisions.
func (s *Store) UpdatePermissionType(ctx context.Context, pt *PermissionType) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE permission_types SET description = $1, level = $2 WHERE id = $3",
		pt.Description, pt.Level, pt.ID)
	if err != nil {
		return fmt.Errorf("failed to update permission type: %w", err)
	}
	return requireRow(result, fmt.Sprintf("permission type %s", pt.ID))
}

// DeletePermissionType removes a permission type. Deletion is refused
// while any role still grants it.
func (s *Store) DeletePermissionType(ctx context.Context, id authz.PermissionTypeID) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM role_permissions WHERE permission_type_id = $1)", id).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check permission type references: %w", err)
	}
	if inUse {
		return ErrPermissionTypeInUse
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM permission_types WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete permission type: %w", err)
	}
	return requireRow(result, fmt.Sprintf("permission type %s", id))
}

// CreateRole creates a role. ID and timestamps are filled in.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return fmt.Errorf("role name is required: %w", authz.ErrInvalidInput)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)", role.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	if exists {
		return fmt.Errorf("role %q already exists: %w", role.Name, authz.ErrInvalidInput)
	}

	role.ID = authz.RoleID(uuid.New().String())
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO roles (id, name, description, level, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
		role.ID, role.Name, role.Description, role.Level, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID; soft-deleted roles are not found.
func (s *Store) GetRole(ctx context.Context, id authz.RoleID) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, level, created_at, updated_at FROM roles WHERE id = $1 AND deleted_at IS NULL", id).
		Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", id, authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns all live roles, most privileged first.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, level, created_at, updated_at FROM roles WHERE deleted_at IS NULL ORDER BY level DESC, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates description and level.
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	role.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE roles SET description = $1, level = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL",
		role.Description, role.Level, role.UpdatedAt, role.ID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireRow(result, fmt.Sprintf("role %s", role.ID))
}

// DeleteRole soft-deletes a role so historical assignments stay
// explainable. Deletion is refused while non-revoked assignments
// still reference the role.
func (s *Store) DeleteRole(ctx context.Context, id authz.RoleID) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM assignments WHERE role_id = $1 AND revoked_at IS NULL)", id).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check role references: %w", err)
	}
	if inUse {
		return ErrRoleInUse
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE roles SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return requireRow(result, fmt.Sprintf("role %s", id))
}

// AddRolePermission grants a permission type to a role. Adding an
// existing grant is a no-op.
func (s *Store) AddRolePermission(ctx context.Context, roleID authz.RoleID, permissionTypeID authz.PermissionTypeID) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.GetPermissionType(ctx, permissionTypeID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_type_id, granted_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (role_id, permission_type_id) DO NOTHING`,
		roleID, permissionTypeID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add role permission: %w", err)
	}
	return nil
}

// RemoveRolePermission removes a permission type from a role.
// Removing an absent grant is a no-op.
func (s *Store) RemoveRolePermission(ctx context.Context, roleID authz.RoleID, permissionTypeID authz.PermissionTypeID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id = $1 AND permission_type_id = $2",
		roleID, permissionTypeID)
	if err != nil {
		return fmt.Errorf("failed to remove role permission: %w", err)
	}
	return nil
}

// ListRolePermissions returns the permission types a role grants.
func (s *Store) ListRolePermissions(ctx context.Context, roleID authz.RoleID) ([]PermissionType, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.id, pt.name, pt.description, pt.level, pt.created_at
		FROM role_permissions rp
		JOIN permission_types pt ON pt.id = rp.permission_type_id
		WHERE rp.role_id = $1
		ORDER BY pt.level DESC, pt.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var types []PermissionType
	for rows.Next() {
		var pt PermissionType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.Level, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}

// ListRolePermissionMappings returns the role's grants together with
// the time each mapping was added, for audit views.
func (s *Store) ListRolePermissionMappings(ctx context.Context, roleID authz.RoleID) ([]RolePermission, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rp.role_id, pt.id, pt.name, pt.description, pt.level, pt.created_at, rp.granted_at
		FROM role_permissions rp
		JOIN permission_types pt ON pt.id = rp.permission_type_id
		WHERE rp.role_id = $1
		ORDER BY pt.level DESC, pt.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permission mappings: %w", err)
	}
	defer rows.Close()

	var mappings []RolePermission
	for rows.Next() {
		var m RolePermission
		err := rows.Scan(&m.RoleID, &m.Permission.ID, &m.Permission.Name,
			&m.Permission.Description, &m.Permission.Level, &m.Permission.CreatedAt, &m.GrantedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role permission mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// GrantedPermissions expands a role into permission names for the
// resolution engine. Soft-deleted roles grant nothing.
func (s *Store) GrantedPermissions(ctx context.Context, roleID authz.RoleID) ([]authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.name
		FROM role_permissions rp
		JOIN permission_types pt ON pt.id = rp.permission_type_id
		JOIN roles r ON r.id = rp.role_id
		WHERE rp.role_id = $1 AND r.deleted_at IS NULL`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to expand role %s: %w", roleID, err)
	}
	defer rows.Close()

	var permissions []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan permission name: %w", err)
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

func requireRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, authz.ErrNotFound)
	}
	return nil
}
