// Package catalog manages the permission vocabulary: permission
// types, roles, and which permissions each role grants. It is the
// engine's RoleGrantSource; assignments reference its roles.
//
// Roles are soft-deleted so historical assignments stay explainable.
// Permission types in use by any role cannot be deleted.
package catalog
