package assignment_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ontoserve/warden/pkg/assignment"
	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/catalog"
	"github.com/ontoserve/warden/pkg/hierarchy"
	"github.com/ontoserve/warden/pkg/storage"
)

type fixture struct {
	db          *sql.DB
	assignments *assignment.Store
	roles       *catalog.Store
	entities    *hierarchy.Store
	viewer      *catalog.Role
	org         *hierarchy.Entity
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, storage.Migrate(ctx, db, catalog.Component, catalog.Migrations))
	require.NoError(t, storage.Migrate(ctx, db, hierarchy.Component, hierarchy.Migrations))
	require.NoError(t, storage.Migrate(ctx, db, assignment.Component, assignment.Migrations))

	f := &fixture{
		db:          db,
		assignments: assignment.NewStore(db),
		roles:       catalog.NewStore(db),
		entities:    hierarchy.NewStore(db),
	}

	f.viewer = &catalog.Role{Name: "viewer", Level: 10}
	require.NoError(t, f.roles.CreateRole(ctx, f.viewer))

	f.org = &hierarchy.Entity{DisplayName: "org"}
	require.NoError(t, f.entities.CreateEntity(ctx, f.org))

	return f
}

func TestAssignAndList(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	grantedBy := authz.PrincipalID("admin-1")
	a := &authz.Assignment{
		Principal: "user-1",
		Role:      f.viewer.ID,
		Scope:     &f.org.ID,
		GrantedBy: &grantedBy,
	}
	require.NoError(t, f.assignments.Assign(ctx, a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.GrantedAt.IsZero())

	listed, err := f.assignments.ListForPrincipal(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, a.ID, listed[0].ID)
	require.NotNil(t, listed[0].Scope)
	assert.Equal(t, f.org.ID, *listed[0].Scope)
	require.NotNil(t, listed[0].GrantedBy)
	assert.Equal(t, grantedBy, *listed[0].GrantedBy)
}

func TestAssignValidation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	from := time.Now().UTC()
	until := from.Add(-time.Hour)

	tests := []struct {
		name       string
		assignment *authz.Assignment
		wantErr    error
	}{
		{
			name:       "missing principal",
			assignment: &authz.Assignment{Role: f.viewer.ID},
			wantErr:    authz.ErrInvalidInput,
		},
		{
			name:       "missing role",
			assignment: &authz.Assignment{Principal: "user-1"},
			wantErr:    authz.ErrInvalidInput,
		},
		{
			name:       "unknown role",
			assignment: &authz.Assignment{Principal: "user-1", Role: "missing"},
			wantErr:    authz.ErrNotFound,
		},
		{
			name: "unknown scope entity",
			assignment: func() *authz.Assignment {
				scope := authz.EntityID("missing")
				return &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, Scope: &scope}
			}(),
			wantErr: authz.ErrNotFound,
		},
		{
			name:       "inverted window",
			assignment: &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, ValidFrom: &from, ValidUntil: &until},
			wantErr:    authz.ErrInvalidInput,
		},
		{
			name:       "invalid schedule",
			assignment: &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, Schedule: "not a cron"},
			wantErr:    authz.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.assignments.Assign(ctx, tt.assignment), tt.wantErr)
		})
	}
}

func TestAssignRejectsDuplicateActive(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	first := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, Scope: &f.org.ID}
	require.NoError(t, f.assignments.Assign(ctx, first))

	dup := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, Scope: &f.org.ID}
	err := f.assignments.Assign(ctx, dup)
	assert.ErrorIs(t, err, authz.ErrDuplicateAssignment)
	assert.ErrorIs(t, err, authz.ErrConflict)

	// A deny over the same role and scope is a distinct assignment.
	deny := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, Scope: &f.org.ID, Deny: true}
	assert.NoError(t, f.assignments.Assign(ctx, deny))

	// So is the same grant at a different scope.
	global := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID}
	assert.NoError(t, f.assignments.Assign(ctx, global))
}

func TestRevokeKeepsRowForAudit(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	a := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID}
	require.NoError(t, f.assignments.Assign(ctx, a))
	require.NoError(t, f.assignments.Revoke(ctx, a.ID, "admin-1", "contract ended"))

	active, err := f.assignments.ListForPrincipal(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	history, err := f.assignments.ListHistory(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].RevokedAt)
	require.NotNil(t, history[0].RevokedBy)
	assert.Equal(t, authz.PrincipalID("admin-1"), *history[0].RevokedBy)
	assert.Equal(t, "contract ended", history[0].RevokeReason)
}

func TestRevokeTwiceFails(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	a := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID}
	require.NoError(t, f.assignments.Assign(ctx, a))
	require.NoError(t, f.assignments.Revoke(ctx, a.ID, "admin-1", "first"))

	err := f.assignments.Revoke(ctx, a.ID, "admin-2", "second")
	assert.ErrorIs(t, err, authz.ErrConflict)

	// Original markers survive the failed second attempt.
	got, err := f.assignments.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.RevokeReason)
}

func TestRevokeNotFound(t *testing.T) {
	f := setupFixture(t)
	err := f.assignments.Revoke(context.Background(), "missing", "admin-1", "")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestReassignAfterRevoke(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	a := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID}
	require.NoError(t, f.assignments.Assign(ctx, a))
	require.NoError(t, f.assignments.Revoke(ctx, a.ID, "admin-1", ""))

	again := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID}
	require.NoError(t, f.assignments.Assign(ctx, again))

	history, err := f.assignments.ListHistory(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAssignRoundTripsWindowAndSchedule(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	a := &authz.Assignment{
		Principal:  "user-1",
		Role:       f.viewer.ID,
		ValidFrom:  &from,
		ValidUntil: &until,
		Schedule:   "* 9-17 * * 1-5",
	}
	require.NoError(t, f.assignments.Assign(ctx, a))

	got, err := f.assignments.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ValidFrom)
	require.NotNil(t, got.ValidUntil)
	assert.True(t, got.ValidFrom.Equal(from))
	assert.True(t, got.ValidUntil.Equal(until))
	assert.Equal(t, "* 9-17 * * 1-5", got.Schedule)
}

func TestListForPrincipalQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectQuery("FROM assignments").WillReturnError(sql.ErrConnDone)

	store := assignment.NewStore(db)
	_, err = store.ListForPrincipal(context.Background(), "user-1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveAssignmentUniqueIndex(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	a := &authz.Assignment{Principal: "user-1", Role: f.viewer.ID, Scope: &f.org.ID}
	require.NoError(t, f.assignments.Assign(ctx, a))

	// A writer that races past the EXISTS pre-check still hits the
	// partial unique index on active assignments.
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO assignments (id, principal_id, role_id, scope_entity_id,
			valid_from, valid_until, schedule_cron, is_deny, granted_by, granted_at,
			revoked_at, revoked_by, revoke_reason)
		VALUES ('race', 'user-1', $1, $2, NULL, NULL, '', FALSE, NULL, $3, NULL, NULL, '')`,
		f.viewer.ID, f.org.ID, time.Now().UTC())
	require.Error(t, err)

	// Revoking frees the slot: the index only covers active rows.
	require.NoError(t, f.assignments.Revoke(ctx, a.ID, "admin-1", "rotation"))
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO assignments (id, principal_id, role_id, scope_entity_id,
			valid_from, valid_until, schedule_cron, is_deny, granted_by, granted_at,
			revoked_at, revoked_by, revoke_reason)
		VALUES ('replacement', 'user-1', $1, $2, NULL, NULL, '', FALSE, NULL, $3, NULL, NULL, '')`,
		f.viewer.ID, f.org.ID, time.Now().UTC())
	assert.NoError(t, err)
}

func TestAssignInsertRaceReportsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// The pre-check sees no duplicate, the insert loses the race to
	// the unique index, and the re-check attributes the failure.
	mock.ExpectQuery("FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM assignments").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO assignments").
		WillReturnError(sql.ErrTxDone)
	mock.ExpectQuery("FROM assignments").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := assignment.NewStore(db)
	err = store.Assign(context.Background(), &authz.Assignment{Principal: "user-1", Role: "viewer"})
	assert.ErrorIs(t, err, authz.ErrDuplicateAssignment)
	assert.NoError(t, mock.ExpectationsWereMet())
}
