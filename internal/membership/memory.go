package membership

import (
	"context"
	"sort"
	"sync"
)

type memberKey struct {
	projectID string
	userID    string
}

// MemoryStore is an in-process Store for tests and single-node tooling.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[memberKey]Membership
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[memberKey]Membership)}
}

// Upsert inserts or overwrites in place, keeping the original CreatedAt.
func (s *MemoryStore) Upsert(ctx context.Context, m Membership) (Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{projectID: m.ProjectID, userID: m.UserID}
	m.Permissions = m.Permissions.Normalize()
	if existing, ok := s.rows[key]; ok {
		m.CreatedAt = existing.CreatedAt
	}
	s.rows[key] = m
	return clone(m), nil
}

// Delete removes the membership if present.
func (s *MemoryStore) Delete(ctx context.Context, projectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, memberKey{projectID: projectID, userID: userID})
	return nil
}

// Find returns nil when no membership exists.
func (s *MemoryStore) Find(ctx context.Context, projectID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[memberKey{projectID: projectID, userID: userID}]
	if !ok {
		return nil, nil
	}
	out := clone(m)
	return &out, nil
}

// ForUser lists a user's memberships, newest first.
func (s *MemoryStore) ForUser(ctx context.Context, userID string) ([]Membership, error) {
	return s.filter(func(m Membership) bool { return m.UserID == userID }), nil
}

// ForProject lists a project's memberships, newest first.
func (s *MemoryStore) ForProject(ctx context.Context, projectID string) ([]Membership, error) {
	return s.filter(func(m Membership) bool { return m.ProjectID == projectID }), nil
}

// UserHasRole checks for a membership with exactly roleName.
func (s *MemoryStore) UserHasRole(ctx context.Context, projectID, userID, roleName string) (bool, error) {
	m, _ := s.Find(ctx, projectID, userID)
	return m != nil && m.RoleName == roleName, nil
}

func (s *MemoryStore) filter(keep func(Membership) bool) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Membership{}
	for _, m := range s.rows {
		if keep(m) {
			out = append(out, clone(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func clone(m Membership) Membership {
	m.Permissions = m.Permissions.Normalize()
	if m.CreatedBy != nil {
		v := *m.CreatedBy
		m.CreatedBy = &v
	}
	return m
}
