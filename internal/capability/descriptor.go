// Package capability holds the catalogue of capabilities declared by enabled
// modules and the persistent role→capability grants derived from it.
package capability

// Descriptor is a capability as declared by one module. Descriptors are
// rebuilt on every registry read and never persisted; only their
// (key, default role) pairs reach the grant store.
type Descriptor struct {
	Key          string
	Module       string
	Label        string
	DefaultRoles []string
	Metadata     map[string]any
}

// Grant is a (role, capability) pair held in the role_capability table.
type Grant struct {
	RoleName   string `json:"role_name"`
	Capability string `json:"capability"`
}

// Key returns the dedup key role::capability.
func (g Grant) Key() string {
	return g.RoleName + "::" + g.Capability
}
