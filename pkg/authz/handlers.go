package authz

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ontoserve/warden/pkg/httputil"
)

// MaxBatchSize bounds a single check-many request.
const MaxBatchSize = 100

// Handlers provides the HTTP query surface over the facade. These
// are operator/introspection endpoints: the full decision, reason
// included, is visible here, which is why deployments put them behind
// an admin permission rather than exposing them to end users.
type Handlers struct {
	service *Service
}

// NewHandlers creates the query handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the query routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/check", h.Check).Methods("POST")
	router.HandleFunc("/authz/check-many", h.CheckMany).Methods("POST")
	router.HandleFunc("/authz/accessible-entities", h.AccessibleEntities).Methods("GET")
	router.HandleFunc("/authz/cache/stats", h.CacheStats).Methods("GET")
	router.HandleFunc("/authz/cache", h.PurgeCache).Methods("DELETE")
}

type checkRequest struct {
	Principal  PrincipalID `json:"principal"`
	Entity     EntityID    `json:"entity"`
	Permission Permission  `json:"permission"`
	Fresh      bool        `json:"fresh,omitempty"`
}

type checkResponse struct {
	Allowed   bool         `json:"allowed"`
	Reason    Reason       `json:"reason"`
	Primary   *Assignment  `json:"primary,omitempty"`
	Matched   []Assignment `json:"matched,omitempty"`
	CheckedAt string       `json:"checked_at"`
}

// Check resolves a single triple and returns the full decision.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "Invalid request body")
		return
	}
	if req.Principal == "" || req.Entity == "" || req.Permission == "" {
		httputil.WriteValidationError(w, "principal, entity and permission are required")
		return
	}

	check := h.service.CheckPermission
	if req.Fresh {
		check = h.service.CheckPermissionUncached
	}
	d, err := check(r.Context(), req.Principal, req.Entity, req.Permission)
	if err != nil {
		WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, checkResponse{
		Allowed:   d.Allowed,
		Reason:    d.Reason,
		Primary:   d.Primary,
		Matched:   d.Matched,
		CheckedAt: d.CheckedAt.UTC().Format(time.RFC3339),
	})
}

type checkManyRequest struct {
	Principal PrincipalID    `json:"principal"`
	Checks    []CheckRequest `json:"checks"`
}

// CheckMany resolves a batch of checks for one principal. Only the
// booleans come back; callers needing reasons use Check per triple.
func (h *Handlers) CheckMany(w http.ResponseWriter, r *http.Request) {
	var req checkManyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "Invalid request body")
		return
	}
	if req.Principal == "" {
		httputil.WriteValidationError(w, "principal is required")
		return
	}
	if len(req.Checks) > MaxBatchSize {
		httputil.WriteValidationError(w, "too many checks in one batch")
		return
	}
	for _, c := range req.Checks {
		if c.Entity == "" || c.Permission == "" {
			httputil.WriteValidationError(w, "each check needs entity and permission")
			return
		}
	}

	results, err := h.service.CheckMany(r.Context(), req.Principal, req.Checks)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"results": results})
}

// AccessibleEntities lists the entities a principal can act on with
// the given permission.
func (h *Handlers) AccessibleEntities(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalID(r.URL.Query().Get("principal"))
	permission := Permission(r.URL.Query().Get("permission"))
	if principal == "" || permission == "" {
		httputil.WriteValidationError(w, "principal and permission query parameters are required")
		return
	}

	entities, err := h.service.AccessibleEntities(r.Context(), principal, permission)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"principal":  principal,
		"permission": permission,
		"entities":   entities,
	})
}

// CacheStats reports decision cache effectiveness.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.service.CacheStats())
}

// PurgeCache drops all cached decisions, or a single principal's when
// the principal query parameter is set.
func (h *Handlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	if principal := r.URL.Query().Get("principal"); principal != "" {
		if err := h.service.InvalidatePrincipal(r.Context(), PrincipalID(principal)); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		httputil.WriteNoContent(w)
		return
	}
	if err := h.service.cache.Purge(r.Context()); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
