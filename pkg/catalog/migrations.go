package catalog

import "github.com/ontoserve/warden/pkg/storage"

// Component names this package's migrations in schema_migrations.
const Component = "catalog"

// Migrations defines the catalog schema.
var Migrations = []storage.Migration{
	{
		Version:     1,
		Description: "create permission_types table",
		SQL: `
			CREATE TABLE IF NOT EXISTS permission_types (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				level INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL
			);
		`,
	},
	{
		Version:     2,
		Description: "create roles table",
		SQL: `
			CREATE TABLE IF NOT EXISTS roles (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				level INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			);
		`,
	},
	{
		Version:     3,
		Description: "create role_permissions table",
		SQL: `
			CREATE TABLE IF NOT EXISTS role_permissions (
				role_id TEXT NOT NULL REFERENCES roles(id),
				permission_type_id TEXT NOT NULL REFERENCES permission_types(id),
				granted_at TIMESTAMP NOT NULL,
				PRIMARY KEY (role_id, permission_type_id)
			);
			CREATE INDEX IF NOT EXISTS idx_role_permissions_permission ON role_permissions(permission_type_id);
		`,
	},
}
