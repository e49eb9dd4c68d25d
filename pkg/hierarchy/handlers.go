package hierarchy

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ontoserve/warden/pkg/audit"
	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/httputil"
)

// Handlers provides HTTP handlers for the entity tree
type Handlers struct {
	store    *Store
	auditLog audit.Logger
}

// NewHandlers creates hierarchy handlers
func NewHandlers(store *Store, auditLog audit.Logger) *Handlers {
	if auditLog == nil {
		auditLog = audit.NopLogger()
	}
	return &Handlers{store: store, auditLog: auditLog}
}

// RegisterRoutes registers hierarchy routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/entities", h.CreateEntity).Methods("POST")
	router.HandleFunc("/entities", h.ListEntities).Methods("GET")
	router.HandleFunc("/entities/{id}", h.GetEntity).Methods("GET")
	router.HandleFunc("/entities/{id}", h.DeleteEntity).Methods("DELETE")
	router.HandleFunc("/entities/{id}/ancestors", h.Ancestors).Methods("GET")
}

func (h *Handlers) actor(r *http.Request) string {
	if principal, ok := authz.PrincipalFromContext(r.Context()); ok {
		return string(principal)
	}
	return r.Header.Get(authz.PrincipalHeader)
}

type entityRequest struct {
	DisplayName string `json:"display_name"`
	ParentID    string `json:"parent_id,omitempty"`
}

// CreateEntity handles POST /entities
func (h *Handlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	e := &Entity{DisplayName: req.DisplayName}
	if req.ParentID != "" {
		parent := authz.EntityID(req.ParentID)
		e.ParentID = &parent
	}

	if err := h.store.CreateEntity(r.Context(), e); err != nil {
		authz.WriteError(w, err)
		return
	}

	event := audit.CatalogEvent(audit.EventTypeEntityCreate, h.actor(r), audit.ResourceTypeEntity, string(e.ID), "entity "+e.DisplayName+" created")
	_ = h.auditLog.Log(r.Context(), event)
	httputil.WriteCreated(w, e)
}

// ListEntities handles GET /entities
func (h *Handlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.store.ListEntities(r.Context())
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	if entities == nil {
		entities = []Entity{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

// GetEntity handles GET /entities/{id}
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	e, err := h.store.GetEntity(r.Context(), authz.EntityID(id))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

// DeleteEntity handles DELETE /entities/{id}
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteEntity(r.Context(), authz.EntityID(id)); err != nil {
		authz.WriteError(w, err)
		return
	}
	event := audit.CatalogEvent(audit.EventTypeEntityDelete, h.actor(r), audit.ResourceTypeEntity, id, "entity deleted")
	_ = h.auditLog.Log(r.Context(), event)
	httputil.WriteNoContent(w)
}

// Ancestors handles GET /entities/{id}/ancestors
func (h *Handlers) Ancestors(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	chain, err := h.store.Ancestors(r.Context(), authz.EntityID(id))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ancestors": chain})
}
