package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-authz/internal/app"
	"github.com/odyssey-erp/odyssey-authz/internal/audit"
	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	"github.com/odyssey-erp/odyssey-authz/internal/membership"
	"github.com/odyssey-erp/odyssey-authz/internal/modules"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
)

// services holds the wired authorization engine.
type services struct {
	logger   *slog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	schema   *db.Schema
	catalog  *capability.Registry
	grants   *capability.PostgresStore
	cached   *capability.CachedGrants
	members  *membership.Service
	sync     *capability.Synchronizer
	voter    *authz.Voter
	timeline *audit.Service
}

func openServices(ctx context.Context, cfg *app.Config, logger *slog.Logger, registerer prometheus.Registerer) (*services, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	mods, err := modules.LoadDir(cfg.ModulesDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("load modules: %w", err)
	}
	moduleRegistry, err := modules.NewRegistry(mods...)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("register modules: %w", err)
	}
	logger.Info("modules loaded", slog.String("dir", cfg.ModulesDir), slog.Int("count", len(mods)))

	var redisClient *redis.Client
	if cfg.RedisAddr != "" && cfg.GrantCacheTTL > 0 {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("grant cache disabled", slog.Any("error", err))
			redisClient = nil
		}
	}

	s := &services{
		logger:   logger,
		pool:     pool,
		redis:    redisClient,
		schema:   db.NewSchema(pool),
		catalog:  capability.NewRegistry(moduleRegistry, logger),
		grants:   capability.NewPostgresStore(pool),
		members:  membership.NewService(membership.NewRepository(pool), logger),
		timeline: audit.NewService(audit.NewRepository(pool)),
	}
	s.cached = capability.NewCachedGrants(s.grants, redisClient, cfg.GrantCacheTTL, logger)
	s.sync = capability.NewSynchronizer(capability.SynchronizerConfig{
		Registry: s.catalog,
		Store:    s.grants,
		Tables:   s.schema,
		Audit:    audit.NewRecorder(pool),
		Cache:    s.cached,
		Logger:   logger,
	})
	s.voter = authz.NewVoter(s.cached, s.members, authz.NewMetrics(registerer), logger)
	return s, nil
}

func (s *services) ready(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return err
	}
	ok, err := s.schema.TableExists(ctx, capability.Table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s table missing", capability.Table)
	}
	return nil
}

func (s *services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	s.pool.Close()
}
