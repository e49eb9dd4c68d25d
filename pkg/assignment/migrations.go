package assignment

import "github.com/ontoserve/warden/pkg/storage"

// Component is the schema_migrations component name for this package.
const Component = "assignment"

// Migrations holds the assignment schema. Revocation is soft; rows are
// never physically deleted, so the table doubles as the grant history.
var Migrations = []storage.Migration{
	{
		Version:     1,
		Description: "create assignments table",
		SQL: `
			CREATE TABLE IF NOT EXISTS assignments (
				id TEXT PRIMARY KEY,
				principal_id TEXT NOT NULL,
				role_id TEXT NOT NULL REFERENCES roles(id),
				scope_entity_id TEXT,
				valid_from TIMESTAMP,
				valid_until TIMESTAMP,
				schedule_cron TEXT NOT NULL DEFAULT '',
				is_deny BOOLEAN NOT NULL DEFAULT FALSE,
				granted_by TEXT,
				granted_at TIMESTAMP NOT NULL,
				revoked_at TIMESTAMP,
				revoked_by TEXT,
				revoke_reason TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_assignments_principal ON assignments(principal_id);
			CREATE INDEX IF NOT EXISTS idx_assignments_role ON assignments(role_id);
			CREATE INDEX IF NOT EXISTS idx_assignments_scope ON assignments(scope_entity_id);
		`,
	},
	{
		Version:     2,
		Description: "enforce one active assignment per (principal, role, scope, is_deny)",
		SQL: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_unique
			ON assignments(principal_id, role_id, COALESCE(scope_entity_id, ''), is_deny)
			WHERE revoked_at IS NULL;
		`,
	},
}
