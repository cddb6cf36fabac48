package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-authz/internal/app"
	"github.com/odyssey-erp/odyssey-authz/internal/audit"
	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	jobmetrics "github.com/odyssey-erp/odyssey-authz/internal/jobs"
	"github.com/odyssey-erp/odyssey-authz/internal/modules"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
	"github.com/odyssey-erp/odyssey-authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	mods, err := modules.LoadDir(cfg.ModulesDir)
	if err != nil {
		logger.Error("load modules", slog.Any("error", err))
		os.Exit(1)
	}
	moduleRegistry, err := modules.NewRegistry(mods...)
	if err != nil {
		logger.Error("register modules", slog.Any("error", err))
		os.Exit(1)
	}

	grants := capability.NewPostgresStore(pool)
	var invalidator capability.Invalidator
	if redisClient, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("grant cache invalidation disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		invalidator = capability.NewCachedGrants(grants, redisClient, cfg.GrantCacheTTL, logger)
	}

	synchronizer := capability.NewSynchronizer(capability.SynchronizerConfig{
		Registry: capability.NewRegistry(moduleRegistry, logger),
		Store:    grants,
		Tables:   db.NewSchema(pool),
		Audit:    audit.NewRecorder(pool),
		Cache:    invalidator,
		Logger:   logger,
	})
	syncJob := jobs.NewCapabilitySyncJob(synchronizer, logger, jobmetrics.NewMetrics(prometheus.DefaultRegisterer))

	var cron []jobs.CronRegistration
	if cfg.SyncCron != "" {
		task, err := jobs.NewCapabilitySyncTask("cron")
		if err != nil {
			logger.Error("build sync task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.SyncCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCapabilitySync, Handler: syncJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
