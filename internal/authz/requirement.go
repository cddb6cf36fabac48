// Package authz decides whether a principal may use a capability inside a
// project, combining global role grants with project memberships.
package authz

import (
	"context"
	"strings"
)

// ProjectCapabilityRequirement is the question asked of the Voter.
type ProjectCapabilityRequirement struct {
	Capability string `json:"capability"`
	ProjectID  string `json:"project_id"`
}

// Principal is the authenticated actor as resolved by the identity layer.
type Principal struct {
	ID    string
	Roles []string
}

// Valid reports whether the principal carries an identity.
func (p Principal) Valid() bool {
	return strings.TrimSpace(p.ID) != ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
