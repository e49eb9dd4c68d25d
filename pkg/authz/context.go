package authz

import (
	"context"
	"net/http"

	"github.com/ontoserve/warden/pkg/observability"
)

// PrincipalHeader carries the authenticated principal id on requests
// entering the service. Upstream authentication (gateway, sidecar) is
// expected to have set it; the kernel itself does not authenticate.
const PrincipalHeader = "X-Warden-Principal"

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal adds the acting principal to the context.
func WithPrincipal(ctx context.Context, principal PrincipalID) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the acting principal from context.
func PrincipalFromContext(ctx context.Context) (PrincipalID, bool) {
	p, ok := ctx.Value(principalKey).(PrincipalID)
	return p, ok
}

// PrincipalFromRequest reads the principal header and stores it on
// the request context, both for handlers and for the structured
// logger. Requests without a principal are rejected as
// unauthenticated.
func PrincipalFromRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := r.Header.Get(PrincipalHeader)
		if principal == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		ctx := WithPrincipal(r.Context(), PrincipalID(principal))
		ctx = observability.WithPrincipalID(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
