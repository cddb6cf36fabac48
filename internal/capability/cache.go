package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const grantsVersionKey = "authz:grants:version"

// RoleLister loads the capabilities of a single role.
type RoleLister interface {
	CapabilitiesForRole(ctx context.Context, role string) ([]string, error)
}

// CachedGrants caches per-role capability sets in Redis. Keys embed a version
// that Invalidate bumps, so stale sets are never read after a sync.
type CachedGrants struct {
	next   RoleLister
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedGrants wraps next. A nil client or non-positive ttl disables caching.
func NewCachedGrants(next RoleLister, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedGrants {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGrants{next: next, client: client, ttl: ttl, logger: logger}
}

// AnyRoleHas reports whether any role holds capability.
func (c *CachedGrants) AnyRoleHas(ctx context.Context, roles []string, capability string) (bool, error) {
	if capability == "" {
		return false, nil
	}
	for _, role := range roles {
		if role == "" {
			continue
		}
		caps, err := c.capabilities(ctx, role)
		if err != nil {
			return false, err
		}
		for _, have := range caps {
			if have == capability {
				return true, nil
			}
		}
	}
	return false, nil
}

// Invalidate drops every cached role set by moving to a new version.
func (c *CachedGrants) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := c.client.Incr(ctx, grantsVersionKey).Err(); err != nil {
		return fmt.Errorf("capability: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedGrants) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *CachedGrants) capabilities(ctx context.Context, role string) ([]string, error) {
	if !c.enabled() {
		return c.next.CapabilitiesForRole(ctx, role)
	}
	key, err := c.key(ctx, role)
	if err != nil {
		c.logger.Warn("grant cache version", slog.Any("error", err))
		return c.next.CapabilitiesForRole(ctx, role)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var caps []string
		if jsonErr := json.Unmarshal(raw, &caps); jsonErr == nil {
			return caps, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("grant cache read", slog.String("role", role), slog.Any("error", err))
		return c.next.CapabilitiesForRole(ctx, role)
	}

	// Waiters share this load, so one caller's cancellation must not fail the rest.
	loadCtx := context.WithoutCancel(ctx)
	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		caps, err := c.next.CapabilitiesForRole(loadCtx, role)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(caps)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(loadCtx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("grant cache write", slog.String("role", role), slog.Any("error", err))
		}
		return caps, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]string), nil
}

func (c *CachedGrants) key(ctx context.Context, role string) (string, error) {
	ver, err := c.client.Get(ctx, grantsVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("authz:grants:v%d:%s", ver, role), nil
}
