package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-authz/internal/platform/httpx"
)

func newTestService(start time.Time) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, nil)
	now := start
	svc.clock = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return svc, store
}

func caps(list ...string) Permissions {
	return Permissions{Capabilities: list}
}

func TestAssignOverwritesWithoutMerging(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	admin := "admin-1"

	first, err := svc.Assign(ctx, "P", "U", "ROLE_EDITOR", caps("content.a"), &admin)
	require.NoError(t, err)

	second, err := svc.Assign(ctx, "P", "U", "ROLE_VIEWER", caps("content.b"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ROLE_VIEWER", second.RoleName)
	assert.Equal(t, []string{"content.b"}, second.Permissions.Capabilities)
	assert.Nil(t, second.CreatedBy)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "created_at is kept on overwrite")

	rows, err := svc.ForProject(ctx, "P")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"content.b"}, rows[0].Permissions.Capabilities)
}

func TestAssignNormalizesPermissions(t *testing.T) {
	svc, _ := newTestService(time.Now())
	m, err := svc.Assign(context.Background(), " P ", "U", "ROLE_EDITOR", Permissions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "P", m.ProjectID)
	assert.NotNil(t, m.Permissions.Capabilities)
	assert.Empty(t, m.Permissions.Capabilities)
}

func TestAssignValidatesInput(t *testing.T) {
	svc, _ := newTestService(time.Now())
	_, err := svc.Assign(context.Background(), "P", "  ", "ROLE_EDITOR", Permissions{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAssignment))
	assert.True(t, errors.Is(err, httpx.ErrValidation))
	assert.Contains(t, err.Error(), "userid")
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Now())

	require.NoError(t, svc.Revoke(ctx, "P", "U"))
	m, err := svc.Find(ctx, "P", "U")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = svc.Assign(ctx, "P", "U", "ROLE_EDITOR", Permissions{}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, "P", "U"))
	m, err = svc.Find(ctx, "P", "U")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestListingsNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Assign(ctx, "P1", "U1", "ROLE_EDITOR", Permissions{}, nil)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, "P2", "U1", "ROLE_VIEWER", Permissions{}, nil)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, "P1", "U2", "ROLE_ADMIN", Permissions{}, nil)
	require.NoError(t, err)

	mine, err := svc.ForUser(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "P2", mine[0].ProjectID)
	assert.Equal(t, "P1", mine[1].ProjectID)

	members, err := svc.ForProject(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "U2", members[0].UserID)

	ok, err := svc.UserHasRole(ctx, "P1", "U1", "ROLE_EDITOR")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.UserHasRole(ctx, "P1", "U1", "ROLE_ADMIN")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = svc.UserHasRole(ctx, "P3", "U1", "ROLE_EDITOR")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Upsert(context.Context, Membership) (Membership, error) {
	return Membership{}, errors.New("store unreachable")
}

func TestAssignPropagatesStoreErrors(t *testing.T) {
	svc := NewService(failingStore{NewMemoryStore()}, nil)
	_, err := svc.Assign(context.Background(), "P", "U", "ROLE_EDITOR", Permissions{}, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, httpx.ErrValidation))
}

func TestLookupsTrimIdentifiers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(time.Now())
	_, err := svc.Assign(ctx, " P1 ", " U1 ", "ROLE_EDITOR", Permissions{}, nil)
	require.NoError(t, err)

	m, err := svc.Find(ctx, " P1 ", "U1 ")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "P1", m.ProjectID)

	rows, err := svc.ForUser(ctx, " U1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = svc.ForProject(ctx, "P1 ")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	ok, err := svc.UserHasRole(ctx, " P1", " U1", " ROLE_EDITOR ")
	require.NoError(t, err)
	assert.True(t, ok)
}
