package hierarchy_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/hierarchy"
	"github.com/ontoserve/warden/pkg/storage"
)

func setupRouter(t *testing.T) (*mux.Router, *hierarchy.Store) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, storage.Migrate(ctx, db, hierarchy.Component, hierarchy.Migrations))

	store := hierarchy.NewStore(db)
	router := mux.NewRouter()
	hierarchy.NewHandlers(store, nil).RegisterRoutes(router)
	return router, store
}

func serve(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestEntityHandlers(t *testing.T) {
	router, _ := setupRouter(t)

	w := serve(t, router, "POST", "/entities", map[string]string{"display_name": "org"})
	require.Equal(t, http.StatusCreated, w.Code)
	var org hierarchy.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &org))

	w = serve(t, router, "POST", "/entities", map[string]string{
		"display_name": "dept", "parent_id": string(org.ID),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var dept hierarchy.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dept))

	w = serve(t, router, "GET", "/entities/"+string(dept.ID)+"/ancestors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var chain struct {
		Ancestors []authz.EntityID `json:"ancestors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chain))
	assert.Equal(t, []authz.EntityID{dept.ID, org.ID}, chain.Ancestors)

	// Parent with a live child cannot be deleted.
	w = serve(t, router, "DELETE", "/entities/"+string(org.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(t, router, "DELETE", "/entities/"+string(dept.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, router, "GET", "/entities/"+string(dept.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEntityHandlerValidation(t *testing.T) {
	router, _ := setupRouter(t)

	w := serve(t, router, "POST", "/entities", map[string]string{"display_name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, router, "POST", "/entities", map[string]string{
		"display_name": "orphan", "parent_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEntitiesHandler(t *testing.T) {
	router, store := setupRouter(t)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		require.NoError(t, store.CreateEntity(ctx, &hierarchy.Entity{DisplayName: name}))
	}

	w := serve(t, router, "GET", "/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Entities []hierarchy.Entity `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Entities, 2)
	assert.Equal(t, "alpha", listed.Entities[0].DisplayName)
}
