// Package modules loads the manifests of installable modules and tracks which
// of them are enabled. Capability declarations are read from here by the
// capability registry; nothing in this package mutates a manifest after load.
package modules

import (
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest indicates a manifest that cannot describe a module.
var ErrInvalidManifest = errors.New("modules: invalid manifest")

// Module is the resolved metadata of one installable module.
type Module struct {
	Slug         string            `yaml:"slug" validate:"required,max=64"`
	Name         string            `yaml:"name"`
	Enabled      *bool             `yaml:"enabled"`
	Capabilities []CapabilityEntry `yaml:"capabilities"`
}

// IsEnabled reports the enabled flag, which defaults to true when omitted.
func (m Module) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// CapabilityEntry is one capability declared in a module manifest.
type CapabilityEntry struct {
	Key          string         `yaml:"key"`
	Label        string         `yaml:"label"`
	DefaultRoles RoleList       `yaml:"default_roles"`
	Metadata     map[string]any `yaml:"metadata"`
}

// RoleList is a list of role names. Scalars of any YAML type are kept by their
// literal text, so `default_roles: [1, true]` yields ["1", "true"]. Anything
// other than a sequence decodes to an empty list.
type RoleList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RoleList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		*r = RoleList{}
		return nil
	}
	roles := make(RoleList, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			continue
		}
		if item.Tag == "!!null" {
			continue
		}
		roles = append(roles, item.Value)
	}
	*r = roles
	return nil
}
