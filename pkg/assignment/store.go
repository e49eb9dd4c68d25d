package assignment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ontoserve/warden/pkg/authz"
)

// ErrAlreadyRevoked refuses a second revocation of the same
// assignment. It matches authz.ErrConflict via errors.Is.
var ErrAlreadyRevoked = fmt.Errorf("assignment already revoked: %w", authz.ErrConflict)

const assignmentColumns = `id, principal_id, role_id, scope_entity_id, valid_from, valid_until,
	schedule_cron, is_deny, granted_by, granted_at, revoked_at, revoked_by, revoke_reason`

// Store handles assignment persistence. It is the engine's assignment
// source: ListForPrincipal feeds resolution with non-revoked rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new assignment store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Assign validates and persists a new assignment. ID and GrantedAt
// are filled in. The same active (principal, role, scope, is_deny)
// combination cannot be granted twice.
func (s *Store) Assign(ctx context.Context, a *authz.Assignment) error {
	if strings.TrimSpace(string(a.Principal)) == "" {
		return fmt.Errorf("principal_id is required: %w", authz.ErrInvalidInput)
	}
	if strings.TrimSpace(string(a.Role)) == "" {
		return fmt.Errorf("role_id is required: %w", authz.ErrInvalidInput)
	}
	if a.ValidFrom != nil && a.ValidUntil != nil && !a.ValidFrom.Before(*a.ValidUntil) {
		return fmt.Errorf("valid_from must precede valid_until: %w", authz.ErrInvalidInput)
	}
	if a.Schedule != "" {
		if _, err := authz.ParseSchedule(a.Schedule); err != nil {
			return err
		}
	}

	var roleExists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1 AND deleted_at IS NULL)", a.Role).Scan(&roleExists)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !roleExists {
		return fmt.Errorf("role %s: %w", a.Role, authz.ErrNotFound)
	}

	if a.Scope != nil {
		var entityExists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM entities WHERE id = $1 AND deleted_at IS NULL)", *a.Scope).Scan(&entityExists)
		if err != nil {
			return fmt.Errorf("failed to check scope entity: %w", err)
		}
		if !entityExists {
			return fmt.Errorf("scope entity %s: %w", *a.Scope, authz.ErrNotFound)
		}
	}

	duplicate, err := s.activeDuplicateExists(ctx, a)
	if err != nil {
		return err
	}
	if duplicate {
		return authz.ErrDuplicateAssignment
	}

	a.ID = authz.AssignmentID(uuid.New().String())
	a.GrantedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL, '')`,
		a.ID, a.Principal, a.Role, scopeValue(a.Scope), a.ValidFrom, a.ValidUntil,
		a.Schedule, a.Deny, principalValue(a.GrantedBy), a.GrantedAt)
	if err != nil {
		// The partial unique index on active assignments backs the
		// pre-check under concurrency; when a racing grant won the
		// insert, report the duplicate rather than the driver error.
		if dup, checkErr := s.activeDuplicateExists(ctx, a); checkErr == nil && dup {
			return authz.ErrDuplicateAssignment
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (s *Store) activeDuplicateExists(ctx context.Context, a *authz.Assignment) (bool, error) {
	var duplicate bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM assignments
			WHERE principal_id = $1 AND role_id = $2
			  AND COALESCE(scope_entity_id, '') = $3
			  AND is_deny = $4 AND revoked_at IS NULL
		)`, a.Principal, a.Role, scopeKey(a.Scope), a.Deny).Scan(&duplicate)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate assignment: %w", err)
	}
	return duplicate, nil
}

// Revoke soft-deletes an assignment, recording who revoked it and
// why. Revoking twice fails; the row keeps its original markers.
func (s *Store) Revoke(ctx context.Context, id authz.AssignmentID, revokedBy authz.PrincipalID, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE assignments
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL`,
		time.Now().UTC(), revokedBy, reason, id)
	if err != nil {
		return fmt.Errorf("failed to revoke assignment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM assignments WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check assignment: %w", err)
		}
		if exists {
			return ErrAlreadyRevoked
		}
		return fmt.Errorf("assignment %s: %w", id, authz.ErrNotFound)
	}
	return nil
}

// Get retrieves an assignment by ID, revoked or not.
func (s *Store) Get(ctx context.Context, id authz.AssignmentID) (*authz.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE id = $1", id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment %s: %w", id, authz.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListForPrincipal returns the principal's non-revoked assignments.
// This is the engine's view: temporal filtering happens at resolve
// time, so future and expired windows are still returned here.
func (s *Store) ListForPrincipal(ctx context.Context, principal authz.PrincipalID) ([]authz.Assignment, error) {
	return s.list(ctx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE principal_id = $1 AND revoked_at IS NULL ORDER BY granted_at",
		principal)
}

// ListHistory returns the principal's assignments for the audit view,
// optionally including revoked rows.
func (s *Store) ListHistory(ctx context.Context, principal authz.PrincipalID, includeRevoked bool) ([]authz.Assignment, error) {
	if includeRevoked {
		return s.list(ctx,
			"SELECT "+assignmentColumns+" FROM assignments WHERE principal_id = $1 ORDER BY granted_at",
			principal)
	}
	return s.ListForPrincipal(ctx, principal)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]authz.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []authz.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssignment(row rowScanner) (*authz.Assignment, error) {
	var (
		a         authz.Assignment
		scope     sql.NullString
		grantedBy sql.NullString
		revokedBy sql.NullString
		from      sql.NullTime
		until     sql.NullTime
		revokedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Principal, &a.Role, &scope, &from, &until,
		&a.Schedule, &a.Deny, &grantedBy, &a.GrantedAt, &revokedAt, &revokedBy, &a.RevokeReason)
	if err != nil {
		return nil, err
	}
	if scope.Valid {
		id := authz.EntityID(scope.String)
		a.Scope = &id
	}
	if grantedBy.Valid {
		p := authz.PrincipalID(grantedBy.String)
		a.GrantedBy = &p
	}
	if revokedBy.Valid {
		p := authz.PrincipalID(revokedBy.String)
		a.RevokedBy = &p
	}
	if from.Valid {
		t := from.Time
		a.ValidFrom = &t
	}
	if until.Valid {
		t := until.Time
		a.ValidUntil = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		a.RevokedAt = &t
	}
	return &a, nil
}

func scopeKey(scope *authz.EntityID) string {
	if scope == nil {
		return ""
	}
	return string(*scope)
}

func scopeValue(scope *authz.EntityID) interface{} {
	if scope == nil {
		return nil
	}
	return string(*scope)
}

func principalValue(p *authz.PrincipalID) interface{} {
	if p == nil {
		return nil
	}
	return string(*p)
}
