package capability

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node tooling.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewMemoryStore builds an empty MemoryStore seeded with grants.
func NewMemoryStore(grants ...Grant) *MemoryStore {
	s := &MemoryStore{grants: make(map[string]Grant, len(grants))}
	for _, g := range grants {
		s.grants[g.Key()] = g
	}
	return s
}

// Pairs returns every grant ordered by role then capability.
func (s *MemoryStore) Pairs(ctx context.Context) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoleName != out[j].RoleName {
			return out[i].RoleName < out[j].RoleName
		}
		return out[i].Capability < out[j].Capability
	})
	return out, nil
}

// Insert adds the grant when absent.
func (s *MemoryStore) Insert(ctx context.Context, g Grant) (bool, error) {
	if err := validateGrant(g); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.Key()]; ok {
		return false, nil
	}
	s.grants[g.Key()] = g
	return true, nil
}

// AnyRoleHas reports whether any role holds capability.
func (s *MemoryStore) AnyRoleHas(ctx context.Context, roles []string, capability string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range roles {
		if _, ok := s.grants[Grant{RoleName: role, Capability: capability}.Key()]; ok {
			return true, nil
		}
	}
	return false, nil
}

// CapabilitiesForRole lists the role's capabilities, sorted.
func (s *MemoryStore) CapabilitiesForRole(ctx context.Context, role string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caps := []string{}
	for _, g := range s.grants {
		if g.RoleName == role {
			caps = append(caps, g.Capability)
		}
	}
	sort.Strings(caps)
	return caps, nil
}
