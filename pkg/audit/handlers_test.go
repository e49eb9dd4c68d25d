package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuditAPI(t *testing.T) (*DBLogger, *mux.Router) {
	logger := setupDBLogger(t)
	h := NewHandlers(logger)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return logger, router
}

func TestSearchEventsHandler(t *testing.T) {
	logger, router := setupAuditAPI(t)
	ctx := context.Background()

	denial := NewEvent(EventTypeAccessDenied, StatusDenied)
	denial.Principal = "alice"
	denial.Reason = "out_of_scope"
	require.NoError(t, logger.Log(ctx, denial))

	grant := GrantEvent("bob", "admin", "assignment-1", false)
	require.NoError(t, logger.Log(ctx, grant))

	req := httptest.NewRequest("GET", "/audit/events?principal=alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []*Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "alice", resp.Events[0].Principal)
	assert.Equal(t, "out_of_scope", resp.Events[0].Reason)
}

func TestSearchEventsHandlerEmpty(t *testing.T) {
	_, router := setupAuditAPI(t)

	req := httptest.NewRequest("GET", "/audit/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())
}

func TestSearchEventsHandlerTimeFilter(t *testing.T) {
	logger, router := setupAuditAPI(t)
	ctx := context.Background()

	old := NewEvent(EventTypeAccessDenied, StatusDenied)
	old.Timestamp = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Log(ctx, old))

	recent := NewEvent(EventTypeAccessDenied, StatusDenied)
	recent.Timestamp = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Log(ctx, recent))

	req := httptest.NewRequest("GET", "/audit/events?start=2026-02-01T00:00:00Z", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []*Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 1)
}

func TestSearchEventsHandlerValidation(t *testing.T) {
	_, router := setupAuditAPI(t)

	for _, url := range []string{
		"/audit/events?start=yesterday",
		"/audit/events?limit=-1",
		"/audit/events?offset=abc",
	} {
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}
