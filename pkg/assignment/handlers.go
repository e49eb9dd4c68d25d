package assignment

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ontoserve/warden/pkg/audit"
	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/httputil"
)

// Handlers provides HTTP handlers for role assignments
type Handlers struct {
	store    *Store
	auditLog audit.Logger
	cache    authz.DecisionCache
}

// NewHandlers creates assignment handlers. The cache may be nil when
// decisions are not cached.
func NewHandlers(store *Store, auditLog audit.Logger, cache authz.DecisionCache) *Handlers {
	if auditLog == nil {
		auditLog = audit.NopLogger()
	}
	return &Handlers{store: store, auditLog: auditLog, cache: cache}
}

// RegisterRoutes registers assignment routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/assignments/schedule-presets", h.ListSchedulePresets).Methods("GET")
	router.HandleFunc("/assignments", h.Assign).Methods("POST")
	router.HandleFunc("/assignments/{id}", h.Get).Methods("GET")
	router.HandleFunc("/assignments/{id}", h.Revoke).Methods("DELETE")
	router.HandleFunc("/principals/{id}/assignments", h.ListForPrincipal).Methods("GET")
}

func (h *Handlers) actor(r *http.Request) string {
	if principal, ok := authz.PrincipalFromContext(r.Context()); ok {
		return string(principal)
	}
	return r.Header.Get(authz.PrincipalHeader)
}

func (h *Handlers) invalidate(r *http.Request, principal authz.PrincipalID) {
	if h.cache != nil {
		_ = h.cache.InvalidatePrincipal(r.Context(), principal)
	}
}

type assignRequest struct {
	PrincipalID   string     `json:"principal_id"`
	RoleID        string     `json:"role_id"`
	ScopeEntityID string     `json:"scope_entity_id,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	ScheduleCron  string     `json:"schedule_cron,omitempty"`
	IsDeny        bool       `json:"is_deny"`
}

// Assign handles POST /assignments
func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	a := &authz.Assignment{
		Principal:  authz.PrincipalID(req.PrincipalID),
		Role:       authz.RoleID(req.RoleID),
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		Schedule:   req.ScheduleCron,
		Deny:       req.IsDeny,
	}
	if req.ScopeEntityID != "" {
		scope := authz.EntityID(req.ScopeEntityID)
		a.Scope = &scope
	}
	if actor := h.actor(r); actor != "" {
		grantedBy := authz.PrincipalID(actor)
		a.GrantedBy = &grantedBy
	}

	if err := h.store.Assign(r.Context(), a); err != nil {
		authz.WriteError(w, err)
		return
	}

	h.invalidate(r, a.Principal)
	_ = h.auditLog.Log(r.Context(), audit.GrantEvent(string(a.Principal), h.actor(r), string(a.ID), a.Deny))
	httputil.WriteCreated(w, a)
}

// Get handles GET /assignments/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	a, err := h.store.Get(r.Context(), authz.AssignmentID(id))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

// Revoke handles DELETE /assignments/{id}. The optional JSON body
// carries a human-readable reason kept on the revoked row.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req revokeRequest
	if r.Body != nil && r.ContentLength > 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	}

	assignmentID := authz.AssignmentID(id)
	a, err := h.store.Get(r.Context(), assignmentID)
	if err != nil {
		authz.WriteError(w, err)
		return
	}

	actor := h.actor(r)
	if err := h.store.Revoke(r.Context(), assignmentID, authz.PrincipalID(actor), req.Reason); err != nil {
		authz.WriteError(w, err)
		return
	}

	h.invalidate(r, a.Principal)
	_ = h.auditLog.Log(r.Context(), audit.RevokeEvent(string(a.Principal), actor, id, req.Reason))
	httputil.WriteNoContent(w)
}

// ListForPrincipal handles GET /principals/{id}/assignments
func (h *Handlers) ListForPrincipal(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	includeRevoked, err := httputil.ParseQueryBool(r, "include_revoked", false)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	assignments, err := h.store.ListHistory(r.Context(), authz.PrincipalID(id), includeRevoked)
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	if assignments == nil {
		assignments = []authz.Assignment{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}

// ListSchedulePresets handles GET /assignments/schedule-presets
func (h *Handlers) ListSchedulePresets(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"presets": authz.SchedulePresets(),
	})
}
