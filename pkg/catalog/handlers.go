package catalog

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ontoserve/warden/pkg/audit"
	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/httputil"
)

// Handlers provides HTTP handlers for the role and permission catalog
type Handlers struct {
	store    *Store
	auditLog audit.Logger
}

// NewHandlers creates catalog handlers
func NewHandlers(store *Store, auditLog audit.Logger) *Handlers {
	if auditLog == nil {
		auditLog = audit.NopLogger()
	}
	return &Handlers{store: store, auditLog: auditLog}
}

// RegisterRoutes registers catalog routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/catalog/permission-types", h.CreatePermissionType).Methods("POST")
	router.HandleFunc("/catalog/permission-types", h.ListPermissionTypes).Methods("GET")
	router.HandleFunc("/catalog/permission-types/{id}", h.GetPermissionType).Methods("GET")
	router.HandleFunc("/catalog/permission-types/{id}", h.UpdatePermissionType).Methods("PUT")
	router.HandleFunc("/catalog/permission-types/{id}", h.DeletePermissionType).Methods("DELETE")

	router.HandleFunc("/catalog/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/catalog/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/catalog/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/catalog/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/catalog/roles/{id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/catalog/roles/{id}/permissions", h.ListRolePermissions).Methods("GET")
	router.HandleFunc("/catalog/roles/{id}/permission-mappings", h.ListRolePermissionMappings).Methods("GET")
	router.HandleFunc("/catalog/roles/{id}/permissions", h.AddRolePermission).Methods("POST")
	router.HandleFunc("/catalog/roles/{id}/permissions/{permission_type_id}", h.RemoveRolePermission).Methods("DELETE")
}

func (h *Handlers) actor(r *http.Request) string {
	if principal, ok := authz.PrincipalFromContext(r.Context()); ok {
		return string(principal)
	}
	return r.Header.Get(authz.PrincipalHeader)
}

func (h *Handlers) audit(r *http.Request, eventType audit.EventType, resourceType audit.ResourceType, resourceID, message string) {
	event := audit.CatalogEvent(eventType, h.actor(r), resourceType, resourceID, message)
	_ = h.auditLog.Log(r.Context(), event)
}

type permissionTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

// CreatePermissionType handles POST /catalog/permission-types
func (h *Handlers) CreatePermissionType(w http.ResponseWriter, r *http.Request) {
	var req permissionTypeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pt := &PermissionType{
		Name:        authz.Permission(req.Name),
		Description: req.Description,
		Level:       req.Level,
	}
	if err := h.store.CreatePermissionType(r.Context(), pt); err != nil {
		authz.WriteError(w, err)
		return
	}

	h.audit(r, audit.EventTypePermissionTypeCreate, audit.ResourceTypePermissionType, string(pt.ID), "permission type "+string(pt.Name)+" created")
	httputil.WriteCreated(w, pt)
}

// ListPermissionTypes handles GET /catalog/permission-types
func (h *Handlers) ListPermissionTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListPermissionTypes(r.Context())
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	if types == nil {
		types = []PermissionType{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"permission_types": types})
}

// GetPermissionType handles GET /catalog/permission-types/{id}
func (h *Handlers) GetPermissionType(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	pt, err := h.store.GetPermissionType(r.Context(), authz.PermissionTypeID(id))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pt)
}

// UpdatePermissionType handles PUT /catalog/permission-types/{id}
func (h *Handlers) UpdatePermissionType(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req permissionTypeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pt := &PermissionType{
		ID:          authz.PermissionTypeID(id),
		Description: req.Description,
		Level:       req.Level,
	}
	if err := h.store.UpdatePermissionType(r.Context(), pt); err != nil {
		authz.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"message": "permission type updated"})
}

// DeletePermissionType handles DELETE /catalog/permission-types/{id}
func (h *Handlers) DeletePermissionType(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeletePermissionType(r.Context(), authz.PermissionTypeID(id)); err != nil {
		authz.WriteError(w, err)
		return
	}
	h.audit(r, audit.EventTypePermissionTypeDelete, audit.ResourceTypePermissionType, id, "permission type deleted")
	httputil.WriteNoContent(w)
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

// CreateRole handles POST /catalog/roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := &Role{
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		authz.WriteError(w, err)
		return
	}

	h.audit(r, audit.EventTypeRoleCreate, audit.ResourceTypeRole, string(role.ID), "role "+role.Name+" created")
	httputil.WriteCreated(w, role)
}

// ListRoles handles GET /catalog/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// GetRole handles GET /catalog/roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.store.GetRole(r.Context(), authz.RoleID(id))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

// UpdateRole handles PUT /catalog/roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := &Role{
		ID:          authz.RoleID(id),
		Description: req.Description,
		Level:       req.Level,
	}
	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		authz.WriteError(w, err)
		return
	}
	h.audit(r, audit.EventTypeRoleUpdate, audit.ResourceTypeRole, id, "role updated")
	httputil.WriteSuccess(w, map[string]string{"message": "role updated"})
}

// DeleteRole handles DELETE /catalog/roles/{id}
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteRole(r.Context(), authz.RoleID(id)); err != nil {
		authz.WriteError(w, err)
		return
	}
	h.audit(r, audit.EventTypeRoleDelete, audit.ResourceTypeRole, id, "role deleted")
	httputil.WriteNoContent(w)
}

type rolePermissionRequest struct {
	PermissionTypeID string `json:"permission_type_id"`
}

// AddRolePermission handles POST /catalog/roles/{id}/permissions
func (h *Handlers) AddRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req rolePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.PermissionTypeID == "" {
		httputil.WriteValidationError(w, "permission_type_id is required")
		return
	}

	err := h.store.AddRolePermission(r.Context(), authz.RoleID(roleID), authz.PermissionTypeID(req.PermissionTypeID))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	h.audit(r, audit.EventTypeRolePermissionAdd, audit.ResourceTypeRole, roleID, "permission "+req.PermissionTypeID+" granted to role")
	httputil.WriteSuccess(w, map[string]string{"message": "permission added to role"})
}

// RemoveRolePermission handles DELETE /catalog/roles/{id}/permissions/{permission_type_id}
func (h *Handlers) RemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roleID := vars["id"]
	permissionTypeID := vars["permission_type_id"]

	err := h.store.RemoveRolePermission(r.Context(), authz.RoleID(roleID), authz.PermissionTypeID(permissionTypeID))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	h.audit(r, audit.EventTypeRolePermissionRemove, audit.ResourceTypeRole, roleID, "permission "+permissionTypeID+" removed from role")
	httputil.WriteNoContent(w)
}

// ListRolePermissions handles GET /catalog/roles/{id}/permissions
func (h *Handlers) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	types, err := h.store.ListRolePermissions(r.Context(), authz.RoleID(roleID))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	if types == nil {
		types = []PermissionType{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": types})
}

// ListRolePermissionMappings handles GET /catalog/roles/{id}/permission-mappings
func (h *Handlers) ListRolePermissionMappings(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	mappings, err := h.store.ListRolePermissionMappings(r.Context(), authz.RoleID(roleID))
	if err != nil {
		authz.WriteError(w, err)
		return
	}
	if mappings == nil {
		mappings = []RolePermission{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"mappings": mappings})
}
