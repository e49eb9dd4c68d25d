package audit

import "github.com/ontoserve/warden/pkg/storage"

// Component is the schema_migrations component name for this package.
const Component = "audit"

// Migrations defines the audit trail schema. Types are the common
// subset of SQLite and PostgreSQL so tests run in-memory against the
// same statements production applies.
var Migrations = []storage.Migration{
	{
		Version:     1,
		Description: "create audit_events table",
		SQL: `
			CREATE TABLE IF NOT EXISTS audit_events (
				id TEXT PRIMARY KEY,
				timestamp TIMESTAMP NOT NULL,
				event_type TEXT NOT NULL,
				status TEXT NOT NULL,
				principal TEXT NOT NULL DEFAULT '',
				actor TEXT NOT NULL DEFAULT '',
				resource_type TEXT NOT NULL DEFAULT '',
				resource_id TEXT NOT NULL DEFAULT '',
				permission TEXT NOT NULL DEFAULT '',
				reason TEXT NOT NULL DEFAULT '',
				request_id TEXT NOT NULL DEFAULT '',
				message TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				metadata TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
			CREATE INDEX IF NOT EXISTS idx_audit_events_principal ON audit_events(principal);
			CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
			CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_type, resource_id);
		`,
	},
}
