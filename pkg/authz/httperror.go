package authz

import (
	"errors"
	"net/http"

	"github.com/ontoserve/warden/pkg/httputil"
)

// WriteError maps kernel errors to HTTP responses. Handlers across
// the catalog, assignment, and hierarchy APIs share this mapping so
// every surface reports the same way.
//
// Denials are deliberately flattened to a generic 403: the decision
// reason lives in the audit trail, not in responses.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httputil.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrConflict):
		httputil.WriteError(w, http.StatusConflict, err)
	case errors.Is(err, ErrPermissionDenied):
		httputil.WriteErrorMessage(w, http.StatusForbidden, "Insufficient permissions")
	default:
		httputil.WriteInternalError(w, err)
	}
}
