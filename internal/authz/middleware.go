package authz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

// Middleware wires project capability checks into HTTP handlers.
type Middleware struct {
	Voter  *Voter
	Logger *slog.Logger
}

// RequireProjectCapability lets the request through only when the principal in
// context is granted capability in the project named by the projectParam URL
// parameter.
func (m Middleware) RequireProjectCapability(capability, projectParam string) func(http.Handler) http.Handler {
	return m.require(capability, func(r *http.Request) string {
		return chi.URLParam(r, projectParam)
	})
}

// RequireCapability checks capability against the principal's global roles
// only; no project membership can satisfy it.
func (m Middleware) RequireCapability(capability string) func(http.Handler) http.Handler {
	return m.require(capability, func(*http.Request) string { return "" })
}

func (m Middleware) require(capability string, project func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := PrincipalFromContext(r.Context())
			if !principal.Valid() {
				httpx.RespondError(w, fmt.Errorf("%w: no principal", httpx.ErrUnauthorized))
				return
			}
			req := ProjectCapabilityRequirement{Capability: capability, ProjectID: project(r)}
			granted, err := m.Voter.Allowed(r.Context(), principal, req)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz require capability", slog.String("capability", capability), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !granted {
				httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrForbidden, capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
