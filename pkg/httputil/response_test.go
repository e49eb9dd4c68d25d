package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusOK, map[string]string{"key": "value"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"key":"value"}`, w.Body.String())
}

func TestWriteErrorVariants(t *testing.T) {
	cases := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "bad") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "missing") }, http.StatusNotFound},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "no") }, http.StatusForbidden},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "exists") }, http.StatusConflict},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tc.write(w)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
