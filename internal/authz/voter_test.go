package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	"github.com/odyssey-erp/odyssey-authz/internal/membership"
	"github.com/odyssey-erp/odyssey-authz/internal/modules"
)

type fixture struct {
	grants  *capability.MemoryStore
	members *membership.Service
	voter   *Voter
	metrics *Metrics
}

func newFixture(t *testing.T, grants ...capability.Grant) fixture {
	t.Helper()
	store := capability.NewMemoryStore(grants...)
	members := membership.NewService(membership.NewMemoryStore(), nil)
	metrics := NewMetrics(prometheus.NewRegistry())
	return fixture{
		grants:  store,
		members: members,
		voter:   NewVoter(store, members, metrics, nil),
		metrics: metrics,
	}
}

func (f fixture) vote(t *testing.T, p Principal, capabilityKey, project string) Decision {
	t.Helper()
	d, err := f.voter.Vote(context.Background(), p, ProjectCapabilityRequirement{Capability: capabilityKey, ProjectID: project})
	require.NoError(t, err)
	return d
}

func TestVoteDeniesWithoutIdentity(t *testing.T) {
	f := newFixture(t, capability.Grant{RoleName: "ROLE_SUPER_ADMIN", Capability: "content.publish"})
	d := f.vote(t, Principal{ID: " ", Roles: []string{"ROLE_SUPER_ADMIN"}}, "content.publish", "P1")
	assert.Equal(t, Decision{Granted: false, Reason: ReasonNoIdentity}, d)
}

func TestVoteGlobalRoleWorksInEveryProject(t *testing.T) {
	f := newFixture(t, capability.Grant{RoleName: "ROLE_SUPER_ADMIN", Capability: "content.publish"})
	p := Principal{ID: "U1", Roles: []string{"ROLE_SUPER_ADMIN"}}
	for _, project := range []string{"P1", "P2", "never-seen"} {
		d := f.vote(t, p, "content.publish", project)
		assert.Equal(t, Decision{Granted: true, Reason: ReasonGlobalRole}, d, project)
	}
}

func TestVoteOverrideGrantsWithoutRoleGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.members.Assign(ctx, "P1", "U1", "ROLE_VIEWER", membership.PermissionsFromMap(map[string]any{"content.edit": true}), nil)
	require.NoError(t, err)

	d := f.vote(t, Principal{ID: "U1", Roles: []string{"ROLE_VIEWER"}}, "content.edit", "P1")
	assert.Equal(t, Decision{Granted: true, Reason: ReasonOverride}, d)

	d = f.vote(t, Principal{ID: "U1", Roles: []string{"ROLE_VIEWER"}}, "content.delete", "P1")
	assert.Equal(t, Decision{Granted: false, Reason: ReasonDenied}, d)
}

func TestVoteDeniesByDefault(t *testing.T) {
	f := newFixture(t, capability.Grant{RoleName: "ROLE_ADMIN", Capability: "content.publish"})
	p := Principal{ID: "U9", Roles: []string{"ROLE_VIEWER", "ROLE_UNKNOWN"}}
	for _, c := range []string{"content.publish", "content.view", ""} {
		d := f.vote(t, p, c, "P1")
		assert.False(t, d.Granted)
		assert.Equal(t, ReasonNoMembership, d.Reason)
	}
}

func TestVoteScenarioSeededEditor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sync := capability.NewSynchronizer(capability.SynchronizerConfig{
		Registry: capability.NewRegistry(staticModules{{
			Slug: "core",
			Capabilities: []modules.CapabilityEntry{
				{Key: "content.publish", DefaultRoles: modules.RoleList{"ROLE_EDITOR", "ROLE_ADMIN"}},
			},
		}}, nil),
		Store: f.grants,
	})
	_, err := sync.Synchronize(ctx)
	require.NoError(t, err)

	pairs, err := f.grants.Pairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []capability.Grant{
		{RoleName: "ROLE_ADMIN", Capability: "content.publish"},
		{RoleName: "ROLE_EDITOR", Capability: "content.publish"},
	}, pairs)

	_, err = f.members.Assign(ctx, "P1", "U1", "ROLE_EDITOR", membership.Permissions{}, nil)
	require.NoError(t, err)

	p := Principal{ID: "U1", Roles: []string{"ROLE_VIEWER"}}
	assert.Equal(t, Decision{Granted: true, Reason: ReasonMembershipRole}, f.vote(t, p, "content.publish", "P1"))
	assert.Equal(t, Decision{Granted: false, Reason: ReasonNoMembership}, f.vote(t, p, "content.publish", "P2"))
}

func TestVoteScenarioCapabilityListOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.members.Assign(ctx, "P1", "U1", "ROLE_VIEWER",
		membership.PermissionsFromMap(map[string]any{"capabilities": []any{"content.publish"}}), nil)
	require.NoError(t, err)

	p := Principal{ID: "U1", Roles: []string{"ROLE_VIEWER"}}
	assert.Equal(t, Decision{Granted: true, Reason: ReasonOverride}, f.vote(t, p, "content.publish", "P1"))
	assert.Equal(t, Decision{Granted: false, Reason: ReasonNoMembership}, f.vote(t, p, "content.publish", "P2"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.votes.WithLabelValues("override", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.votes.WithLabelValues("no_membership", "false")))
}

type brokenChecker struct{}

func (brokenChecker) AnyRoleHas(context.Context, []string, string) (bool, error) {
	return false, errors.New("db down")
}

type brokenFinder struct{}

func (brokenFinder) Find(context.Context, string, string) (*membership.Membership, error) {
	return nil, errors.New("db down")
}

func TestVotePropagatesStorageErrors(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	p := Principal{ID: "U1", Roles: []string{"ROLE_EDITOR"}}
	req := ProjectCapabilityRequirement{Capability: "content.publish", ProjectID: "P1"}

	_, err := NewVoter(brokenChecker{}, membership.NewMemoryStore(), metrics, nil).Vote(context.Background(), p, req)
	require.Error(t, err)

	_, err = NewVoter(capability.NewMemoryStore(), brokenFinder{}, metrics, nil).Vote(context.Background(), p, req)
	require.Error(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.errors))
}

func TestVoteIsDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, capability.Grant{RoleName: "ROLE_EDITOR", Capability: "content.publish"})
	_, err := f.members.Assign(ctx, "P1", "U1", "ROLE_EDITOR", membership.Permissions{}, nil)
	require.NoError(t, err)
	p := Principal{ID: "U1"}
	first := f.vote(t, p, "content.publish", "P1")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.vote(t, p, "content.publish", "P1"))
	}
}

type staticModules []modules.Module

func (s staticModules) EnabledModules() []modules.Module { return s }
