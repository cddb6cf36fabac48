package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
)

// Table is the role→capability grant table name.
const Table = "role_capability"

// Checker answers whether any of the roles holds a capability.
type Checker interface {
	AnyRoleHas(ctx context.Context, roles []string, capability string) (bool, error)
}

// Store is the persistent role→capability relation. It never deletes grants.
type Store interface {
	Checker
	Pairs(ctx context.Context) ([]Grant, error)
	// Insert adds the grant and reports whether a row was created. A grant
	// that already exists is not an error.
	Insert(ctx context.Context, g Grant) (bool, error)
	CapabilitiesForRole(ctx context.Context, role string) ([]string, error)
}

// PostgresStore keeps grants in role_capability.
type PostgresStore struct {
	db db.DBTX
}

// NewPostgresStore constructs the store.
func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{db: conn}
}

// Pairs loads every grant.
func (s *PostgresStore) Pairs(ctx context.Context) ([]Grant, error) {
	rows, err := s.db.Query(ctx, `SELECT role_name, capability FROM role_capability`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.RoleName, &g.Capability); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// Insert adds a grant, treating a primary key conflict as already present.
func (s *PostgresStore) Insert(ctx context.Context, g Grant) (bool, error) {
	if err := validateGrant(g); err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `INSERT INTO role_capability (role_name, capability) VALUES ($1, $2) ON CONFLICT (role_name, capability) DO NOTHING`, g.RoleName, g.Capability)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AnyRoleHas checks the grant table for any of the roles in one query.
func (s *PostgresStore) AnyRoleHas(ctx context.Context, roles []string, capability string) (bool, error) {
	if len(roles) == 0 || capability == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM role_capability WHERE role_name = ANY($1) AND capability = $2)`, roles, capability).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CapabilitiesForRole lists the capabilities granted to a role, sorted.
func (s *PostgresStore) CapabilitiesForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT capability FROM role_capability WHERE role_name = $1 ORDER BY capability`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	caps := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return caps, nil
}

// GrantRole records a grant on behalf of role management tooling. Existing
// grants are kept. When a row is created, cache (if set) is invalidated so
// readers see the grant immediately.
func GrantRole(ctx context.Context, s Store, cache Invalidator, role, capability string) (bool, error) {
	created, err := s.Insert(ctx, Grant{RoleName: strings.TrimSpace(role), Capability: strings.TrimSpace(capability)})
	if err != nil || !created || cache == nil {
		return created, err
	}
	if err := cache.Invalidate(ctx); err != nil {
		return created, fmt.Errorf("capability: grant stored: %w", err)
	}
	return created, nil
}

func validateGrant(g Grant) error {
	if g.RoleName == "" || g.Capability == "" {
		return errors.New("capability: grant requires role and capability")
	}
	return nil
}
