package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a single schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrate executes the component's pending migrations in order. Each
// migration runs in its own transaction together with its bookkeeping
// row, so a failure leaves the schema at the last complete version.
func Migrate(ctx context.Context, db *sql.DB, component string, migrations []Migration) error {
	if component == "" {
		return fmt.Errorf("migration component name is required")
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			component TEXT NOT NULL,
			version INTEGER NOT NULL,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			PRIMARY KEY (component, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db, component)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s/%d (%s) failed: %w",
				component, migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (component, version, description, applied_at) VALUES ($1, $2, $3, $4)",
			component, migration.Version, migration.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s/%d: %w", component, migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s/%d: %w", component, migration.Version, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, component string) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version FROM schema_migrations WHERE component = $1 ORDER BY version", component)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	return applied, nil
}
