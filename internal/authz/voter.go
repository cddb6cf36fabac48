package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	"github.com/odyssey-erp/odyssey-authz/internal/membership"
)

// Reason names the step that settled a vote.
type Reason string

const (
	ReasonNoIdentity     Reason = "no_identity"
	ReasonGlobalRole     Reason = "global_role"
	ReasonNoMembership   Reason = "no_membership"
	ReasonOverride       Reason = "override"
	ReasonMembershipRole Reason = "membership_role"
	ReasonDenied         Reason = "denied"
)

// Decision is the verdict of a vote.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  Reason `json:"reason"`
}

// MembershipFinder looks up a single membership; nil means none.
type MembershipFinder interface {
	Find(ctx context.Context, projectID, userID string) (*membership.Membership, error)
}

// Voter answers project capability requirements. Steps run in order and the
// first match wins:
//
//  1. no identity: deny
//  2. any global role holds the capability: grant
//  3. no membership in the project: deny
//  4. membership overrides grant the capability: grant
//  5. membership role holds the capability: grant
//  6. deny
type Voter struct {
	grants  capability.Checker
	members MembershipFinder
	metrics *Metrics
	logger  *slog.Logger
}

// NewVoter builds a Voter. metrics may be nil.
func NewVoter(grants capability.Checker, members MembershipFinder, metrics *Metrics, logger *slog.Logger) *Voter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Voter{grants: grants, members: members, metrics: metrics, logger: logger}
}

// Vote decides the requirement for p. Denial is a normal result; only storage
// failures are returned as errors.
func (v *Voter) Vote(ctx context.Context, p Principal, req ProjectCapabilityRequirement) (Decision, error) {
	d, err := v.decide(ctx, p, req)
	if err != nil {
		v.logger.Error("authz vote",
			slog.String("user_id", p.ID),
			slog.String("capability", req.Capability),
			slog.String("project_id", req.ProjectID),
			slog.Any("error", err),
		)
		v.metrics.observeError()
		return Decision{}, err
	}
	v.metrics.observe(d)
	return d, nil
}

// Allowed is Vote reduced to a boolean.
func (v *Voter) Allowed(ctx context.Context, p Principal, req ProjectCapabilityRequirement) (bool, error) {
	d, err := v.Vote(ctx, p, req)
	return d.Granted, err
}

func (v *Voter) decide(ctx context.Context, p Principal, req ProjectCapabilityRequirement) (Decision, error) {
	if !p.Valid() {
		return deny(ReasonNoIdentity), nil
	}

	ok, err := v.grants.AnyRoleHas(ctx, p.Roles, req.Capability)
	if err != nil {
		return Decision{}, fmt.Errorf("authz: global roles: %w", err)
	}
	if ok {
		return grant(ReasonGlobalRole), nil
	}

	m, err := v.members.Find(ctx, req.ProjectID, p.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("authz: membership: %w", err)
	}
	if m == nil {
		return deny(ReasonNoMembership), nil
	}

	if m.Permissions.Grants(req.Capability) {
		return grant(ReasonOverride), nil
	}

	if m.RoleName != "" {
		ok, err = v.grants.AnyRoleHas(ctx, []string{m.RoleName}, req.Capability)
		if err != nil {
			return Decision{}, fmt.Errorf("authz: membership role: %w", err)
		}
		if ok {
			return grant(ReasonMembershipRole), nil
		}
	}
	return deny(ReasonDenied), nil
}

func grant(r Reason) Decision { return Decision{Granted: true, Reason: r} }
func deny(r Reason) Decision  { return Decision{Granted: false, Reason: r} }
