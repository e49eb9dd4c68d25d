// Package storage owns database connectivity and schema migrations.
//
// Each domain package (catalog, assignment, hierarchy, audit) ships
// its own ordered migration list; the runner tracks applied versions
// per component in a shared schema_migrations table, so components
// evolve independently. All statements stick to the SQL subset that
// both PostgreSQL and SQLite accept: production runs on Postgres,
// tests run the identical migrations against in-memory SQLite.
package storage
