package authz

import (
	"net/http"
)

// EntityResolver maps an incoming request to the entity it targets.
type EntityResolver func(r *http.Request) (EntityID, bool)

// Middleware enforces permissions in front of HTTP handlers.
type Middleware struct {
	service *Service
}

// NewMiddleware creates permission-enforcement middleware over the
// query facade.
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequirePermission gates a handler behind a permission on the entity
// the resolver extracts from the request. Denials and check failures
// both produce the same generic 403: the decision reason stays in the
// audit trail, never in the response body.
func (m *Middleware) RequirePermission(permission Permission, resolveEntity EntityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			entity, ok := resolveEntity(r)
			if !ok {
				http.Error(w, "Entity required", http.StatusBadRequest)
				return
			}

			if err := m.service.RequirePermission(r.Context(), principal, entity, permission); err != nil {
				// Fail closed: an unavailable backend denies the same
				// way an explicit denial does.
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
