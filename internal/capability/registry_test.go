package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/modules"
)

type staticModules []modules.Module

func (s staticModules) EnabledModules() []modules.Module { return s }

func TestRegistryAllBuildsDescriptors(t *testing.T) {
	reg := NewRegistry(staticModules{
		{
			Slug: "core",
			Capabilities: []modules.CapabilityEntry{
				{Key: "content.publish", Label: "Publish content", DefaultRoles: modules.RoleList{"ROLE_EDITOR", "ROLE_ADMIN"}},
				{Key: "  ", Label: "ignored"},
				{Key: "content.view"},
			},
		},
		{
			Slug: "media",
			Capabilities: []modules.CapabilityEntry{
				{Key: "content.publish", DefaultRoles: modules.RoleList{"ROLE_MEDIA"}, Metadata: map[string]any{"group": "media"}},
			},
		},
	}, nil)

	all := reg.All()
	require.Len(t, all, 3)

	assert.Equal(t, Descriptor{
		Key:          "content.publish",
		Module:       "core",
		Label:        "Publish content",
		DefaultRoles: []string{"ROLE_EDITOR", "ROLE_ADMIN"},
		Metadata:     map[string]any{},
	}, all[0])
	assert.Equal(t, "content.view", all[1].Label, "label defaults to key")
	assert.Empty(t, all[1].DefaultRoles)
	assert.Equal(t, "media", all[2].Module, "duplicate keys across modules are kept")
	assert.Equal(t, "media", all[2].Metadata["group"])
}

func TestRegistryDefaultRolesFor(t *testing.T) {
	reg := NewRegistry(staticModules{
		{Slug: "core", Capabilities: []modules.CapabilityEntry{{Key: "content.publish", DefaultRoles: modules.RoleList{"ROLE_EDITOR"}}}},
		{Slug: "media", Capabilities: []modules.CapabilityEntry{{Key: "content.publish", DefaultRoles: modules.RoleList{"ROLE_MEDIA"}}}},
	}, nil)

	assert.Equal(t, []string{"ROLE_EDITOR"}, reg.DefaultRolesFor("content.publish"))
	roles := reg.DefaultRolesFor("unknown")
	assert.NotNil(t, roles)
	assert.Empty(t, roles)
}

func TestRegistryUsesEnabledModulesOnly(t *testing.T) {
	off := false
	modReg, err := modules.NewRegistry(
		modules.Module{Slug: "core", Capabilities: []modules.CapabilityEntry{{Key: "content.publish"}}},
		modules.Module{Slug: "legacy", Enabled: &off, Capabilities: []modules.CapabilityEntry{{Key: "legacy.use"}}},
	)
	require.NoError(t, err)

	all := NewRegistry(modReg, nil).All()
	require.Len(t, all, 1)
	assert.Equal(t, "content.publish", all[0].Key)
}

func TestRegistryTrimsDefaultRoles(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(staticModules{{
		Slug: "core",
		Capabilities: []modules.CapabilityEntry{
			{Key: "content.publish", DefaultRoles: modules.RoleList{" ROLE_EDITOR", "ROLE_ADMIN ", "  "}},
		},
	}}, nil)

	assert.Equal(t, []string{"ROLE_EDITOR", "ROLE_ADMIN"}, reg.DefaultRolesFor("content.publish"))

	store := NewMemoryStore()
	report, err := NewSynchronizer(SynchronizerConfig{Registry: reg, Store: store}).Synchronize(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Created, 2)

	ok, err := store.AnyRoleHas(ctx, []string{"ROLE_EDITOR"}, "content.publish")
	require.NoError(t, err)
	assert.True(t, ok)
}
