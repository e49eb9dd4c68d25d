package hierarchy_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/hierarchy"
	"github.com/ontoserve/warden/pkg/storage"
)

type tree struct {
	db      *sql.DB
	store   *hierarchy.Store
	org     *hierarchy.Entity
	dept    *hierarchy.Entity
	project *hierarchy.Entity
	other   *hierarchy.Entity
}

// setupTree builds org -> dept -> project plus a sibling dept.
func setupTree(t *testing.T) *tree {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, storage.Migrate(ctx, db, hierarchy.Component, hierarchy.Migrations))

	store := hierarchy.NewStore(db)
	tr := &tree{db: db, store: store}

	tr.org = &hierarchy.Entity{DisplayName: "org"}
	require.NoError(t, store.CreateEntity(ctx, tr.org))
	tr.dept = &hierarchy.Entity{DisplayName: "dept", ParentID: &tr.org.ID}
	require.NoError(t, store.CreateEntity(ctx, tr.dept))
	tr.project = &hierarchy.Entity{DisplayName: "project", ParentID: &tr.dept.ID}
	require.NoError(t, store.CreateEntity(ctx, tr.project))
	tr.other = &hierarchy.Entity{DisplayName: "other dept", ParentID: &tr.org.ID}
	require.NoError(t, store.CreateEntity(ctx, tr.other))

	return tr
}

func TestCreateEntityValidation(t *testing.T) {
	tr := setupTree(t)
	ctx := context.Background()

	err := tr.store.CreateEntity(ctx, &hierarchy.Entity{DisplayName: "  "})
	assert.ErrorIs(t, err, authz.ErrInvalidInput)

	missing := authz.EntityID("missing")
	err = tr.store.CreateEntity(ctx, &hierarchy.Entity{DisplayName: "orphan", ParentID: &missing})
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestAncestorsChainOrder(t *testing.T) {
	tr := setupTree(t)

	chain, err := tr.store.Ancestors(context.Background(), tr.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{tr.project.ID, tr.dept.ID, tr.org.ID}, chain)
}

func TestAncestorsOfRoot(t *testing.T) {
	tr := setupTree(t)

	chain, err := tr.store.Ancestors(context.Background(), tr.org.ID)
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{tr.org.ID}, chain)
}

func TestAncestorsUnknownEntity(t *testing.T) {
	tr := setupTree(t)
	_, err := tr.store.Ancestors(context.Background(), "missing")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestAncestorsDetectsCycle(t *testing.T) {
	tr := setupTree(t)
	ctx := context.Background()

	// Corrupt the parent pointers directly: org's parent becomes its
	// own grandchild.
	_, err := tr.db.ExecContext(ctx, "UPDATE entities SET parent_id = $1 WHERE id = $2", tr.project.ID, tr.org.ID)
	require.NoError(t, err)

	_, err = tr.store.Ancestors(ctx, tr.dept.ID)
	assert.ErrorIs(t, err, authz.ErrCycleDetected)
}

func TestSubtree(t *testing.T) {
	tr := setupTree(t)
	ctx := context.Background()

	members, err := tr.store.Subtree(ctx, tr.org.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []authz.EntityID{tr.org.ID, tr.dept.ID, tr.project.ID, tr.other.ID}, members)

	members, err = tr.store.Subtree(ctx, tr.dept.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []authz.EntityID{tr.dept.ID, tr.project.ID}, members)

	members, err = tr.store.Subtree(ctx, tr.project.ID)
	require.NoError(t, err)
	assert.Equal(t, []authz.EntityID{tr.project.ID}, members)
}

func TestDeleteEntityLeafFirst(t *testing.T) {
	tr := setupTree(t)
	ctx := context.Background()

	err := tr.store.DeleteEntity(ctx, tr.dept.ID)
	assert.ErrorIs(t, err, authz.ErrConflict)

	require.NoError(t, tr.store.DeleteEntity(ctx, tr.project.ID))
	require.NoError(t, tr.store.DeleteEntity(ctx, tr.dept.ID))

	_, err = tr.store.GetEntity(ctx, tr.dept.ID)
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestAllEntitiesExcludesDeleted(t *testing.T) {
	tr := setupTree(t)
	ctx := context.Background()

	require.NoError(t, tr.store.DeleteEntity(ctx, tr.project.ID))

	ids, err := tr.store.AllEntities(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []authz.EntityID{tr.org.ID, tr.dept.ID, tr.other.ID}, ids)
}
