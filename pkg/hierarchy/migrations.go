package hierarchy

import "github.com/ontoserve/warden/pkg/storage"

// Component is the schema_migrations component name for this package.
const Component = "hierarchy"

// Migrations holds the entity tree schema. The tree is parent-pointer:
// each entity names its parent, roots have none.
var Migrations = []storage.Migration{
	{
		Version:     1,
		Description: "create entities table",
		SQL: `
			CREATE TABLE IF NOT EXISTS entities (
				id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				parent_id TEXT REFERENCES entities(id),
				created_at TIMESTAMP NOT NULL,
				deleted_at TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_id);
		`,
	},
}
