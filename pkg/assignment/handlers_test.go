package assignment_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ontoserve/warden/pkg/assignment"
	"github.com/ontoserve/warden/pkg/audit"
	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/catalog"
	"github.com/ontoserve/warden/pkg/hierarchy"
	"github.com/ontoserve/warden/pkg/storage"
)

type recordingAuditLogger struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (l *recordingAuditLogger) Log(_ context.Context, event *audit.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *recordingAuditLogger) Close() error { return nil }

type recordingCache struct {
	authz.NopCache
	mu          sync.Mutex
	invalidated []authz.PrincipalID
}

func (c *recordingCache) InvalidatePrincipal(_ context.Context, principal authz.PrincipalID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, principal)
	return nil
}

type handlerFixture struct {
	router   *mux.Router
	fixture  *fixture
	auditLog *recordingAuditLogger
	cache    *recordingCache
}

func setupHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, storage.Migrate(ctx, db, catalog.Component, catalog.Migrations))
	require.NoError(t, storage.Migrate(ctx, db, hierarchy.Component, hierarchy.Migrations))
	require.NoError(t, storage.Migrate(ctx, db, assignment.Component, assignment.Migrations))

	f := &fixture{
		assignments: assignment.NewStore(db),
		roles:       catalog.NewStore(db),
		entities:    hierarchy.NewStore(db),
	}
	f.viewer = &catalog.Role{Name: "viewer", Level: 10}
	require.NoError(t, f.roles.CreateRole(ctx, f.viewer))
	f.org = &hierarchy.Entity{DisplayName: "org"}
	require.NoError(t, f.entities.CreateEntity(ctx, f.org))

	auditLog := &recordingAuditLogger{}
	cache := &recordingCache{}
	router := mux.NewRouter()
	assignment.NewHandlers(f.assignments, auditLog, cache).RegisterRoutes(router)

	return &handlerFixture{router: router, fixture: f, auditLog: auditLog, cache: cache}
}

func (h *handlerFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(authz.PrincipalHeader, "admin-1")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestAssignHandler(t *testing.T) {
	h := setupHandlerFixture(t)

	w := h.do(t, "POST", "/assignments", map[string]interface{}{
		"principal_id":    "user-1",
		"role_id":         string(h.fixture.viewer.ID),
		"scope_entity_id": string(h.fixture.org.ID),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created authz.Assignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	require.NotNil(t, created.GrantedBy)
	assert.Equal(t, authz.PrincipalID("admin-1"), *created.GrantedBy)

	assert.Equal(t, []authz.PrincipalID{"user-1"}, h.cache.invalidated)
	require.Len(t, h.auditLog.events, 1)
	assert.Equal(t, audit.EventTypeAssignmentGrant, h.auditLog.events[0].EventType)
}

func TestAssignHandlerDuplicate(t *testing.T) {
	h := setupHandlerFixture(t)
	body := map[string]interface{}{
		"principal_id": "user-1",
		"role_id":      string(h.fixture.viewer.ID),
	}
	require.Equal(t, http.StatusCreated, h.do(t, "POST", "/assignments", body).Code)
	assert.Equal(t, http.StatusConflict, h.do(t, "POST", "/assignments", body).Code)
}

func TestAssignHandlerValidation(t *testing.T) {
	h := setupHandlerFixture(t)

	w := h.do(t, "POST", "/assignments", map[string]interface{}{
		"principal_id":  "user-1",
		"role_id":       string(h.fixture.viewer.ID),
		"schedule_cron": "not a cron",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, "POST", "/assignments", map[string]interface{}{
		"principal_id": "user-1",
		"role_id":      "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeHandler(t *testing.T) {
	h := setupHandlerFixture(t)
	ctx := context.Background()

	a := &authz.Assignment{Principal: "user-1", Role: h.fixture.viewer.ID}
	require.NoError(t, h.fixture.assignments.Assign(ctx, a))

	w := h.do(t, "DELETE", "/assignments/"+string(a.ID), map[string]string{"reason": "offboarding"})
	require.Equal(t, http.StatusNoContent, w.Code)

	got, err := h.fixture.assignments.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, "offboarding", got.RevokeReason)

	assert.Contains(t, h.cache.invalidated, authz.PrincipalID("user-1"))
	require.Len(t, h.auditLog.events, 1)
	assert.Equal(t, audit.EventTypeAssignmentRevoke, h.auditLog.events[0].EventType)

	// Second revoke conflicts.
	w = h.do(t, "DELETE", "/assignments/"+string(a.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRevokeHandlerNotFound(t *testing.T) {
	h := setupHandlerFixture(t)
	w := h.do(t, "DELETE", "/assignments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListForPrincipalHandler(t *testing.T) {
	h := setupHandlerFixture(t)
	ctx := context.Background()

	active := &authz.Assignment{Principal: "user-1", Role: h.fixture.viewer.ID}
	require.NoError(t, h.fixture.assignments.Assign(ctx, active))
	revoked := &authz.Assignment{Principal: "user-1", Role: h.fixture.viewer.ID, Deny: true}
	require.NoError(t, h.fixture.assignments.Assign(ctx, revoked))
	require.NoError(t, h.fixture.assignments.Revoke(ctx, revoked.ID, "admin-1", ""))

	var listed struct {
		Assignments []authz.Assignment `json:"assignments"`
	}

	w := h.do(t, "GET", "/principals/user-1/assignments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Assignments, 1)

	w = h.do(t, "GET", "/principals/user-1/assignments?include_revoked=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Assignments, 2)
}

func TestListSchedulePresetsHandler(t *testing.T) {
	h := setupHandlerFixture(t)

	w := h.do(t, "GET", "/assignments/schedule-presets", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Presets []authz.SchedulePreset `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.NotEmpty(t, listed.Presets)
	for _, preset := range listed.Presets {
		_, err := authz.ParseSchedule(preset.Cron)
		assert.NoError(t, err, "preset %s must parse", preset.Name)
	}
}

func TestAssignHandlerWindowRoundTrip(t *testing.T) {
	h := setupHandlerFixture(t)

	from := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	w := h.do(t, "POST", "/assignments", map[string]interface{}{
		"principal_id": "user-1",
		"role_id":      string(h.fixture.viewer.ID),
		"valid_from":   from.Format(time.RFC3339),
		"valid_until":  until.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created authz.Assignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.ValidFrom)
	assert.True(t, created.ValidFrom.Equal(from))
}
