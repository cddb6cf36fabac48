package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/odyssey-erp/odyssey-authz/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-authz/internal/app"
	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	authzhttp "github.com/odyssey-erp/odyssey-authz/internal/authz/http"
	"github.com/odyssey-erp/odyssey-authz/internal/observability"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
	"github.com/odyssey-erp/odyssey-authz/jobs"
)

const usage = `usage: odyssey <command> [flags]

commands:
  serve     run the HTTP API
  migrate   apply the database schema
  sync      seed default capability grants once
  grant     grant a capability to a role
  assign    create or replace a project membership
  revoke    remove a project membership
  members   list memberships of a project or a user
  vote      evaluate a capability requirement
  jobs      trigger-sync | status | scheduled
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		if errors.Is(err, cli.ErrDenied) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return nil
	}
	command, rest := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		fmt.Fprint(stdout, usage)
		return nil
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	switch command {
	case "serve":
		return runServe(ctx, cfg, logger, rest)
	case "migrate":
		return runMigrate(ctx, cfg, logger, rest, stdout)
	case "jobs":
		return runJobs(ctx, cfg, rest, stdout)
	case "sync", "grant", "assign", "revoke", "members", "vote":
		return runAdmin(ctx, cfg, logger, command, rest, stdout)
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runServe(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.StringVar(&cfg.AppAddr, "addr", cfg.AppAddr, "listen address")
	flags.BoolVar(&cfg.SyncOnBoot, "sync-on-boot", cfg.SyncOnBoot, "seed default grants before serving")
	if err := flags.Parse(args); err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	svc, err := openServices(ctx, cfg, logger, metrics.Registerer())
	if err != nil {
		return err
	}
	defer svc.Close()

	if cfg.SyncOnBoot {
		if _, err := svc.sync.Synchronize(ctx); err != nil {
			logger.Error("capability sync on boot", slog.Any("error", err))
		}
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var guard *authz.Middleware
	if cfg.TrustIdentityHeaders {
		guard = &authz.Middleware{Voter: svc.voter, Logger: logger}
	}
	api := authzhttp.NewHandler(authzhttp.Config{
		Logger:           logger,
		Voter:            svc.voter,
		Memberships:      svc.members,
		Catalog:          svc.catalog,
		Sync:             svc.sync,
		Timeline:         svc.timeline,
		VoteLimit:        cfg.VoteRateLimit,
		Guard:            guard,
		ManageCapability: cfg.MembersManageCapability,
		AdminCapability:  cfg.AdminCapability,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		AuthzAPI:    api,
		JobsHandler: jobs.NewHandler(inspector, logger),
		Metrics:     metrics,
		Readiness:   svc.ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	printOnly := flags.Bool("print", false, "print the schema instead of applying it")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *printOnly {
		fmt.Fprint(stdout, db.SchemaSQL())
		return nil
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.ApplySchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("jobs", pflag.ContinueOnError)
	reason := flags.String("reason", "manual", "reason recorded on the sync task")
	size := flags.Int("size", 10, "page size for scheduled")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("jobs: expected trigger-sync, status or scheduled")
	}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	switch flags.Arg(0) {
	case "trigger-sync":
		info, err := jobsCLI.TriggerSync(ctx, *reason)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "enqueued %s (%s) on %s\n", info.ID, info.Type, info.Queue)
		return nil
	case "status":
		status, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "queue=%s pending=%d active=%d retry=%d archived=%d\n",
			status.Queue, status.Pending, status.Active, status.Retry, status.Archived)
		return nil
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("jobs: unknown action %q", flags.Arg(0))
	}
}

func runAdmin(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	asJSON := flags.Bool("json", false, "print JSON")
	project := flags.StringP("project", "p", "", "project id")
	user := flags.StringP("user", "u", "", "user id")
	role := flags.StringP("role", "r", "", "role name")
	capabilityKey := flags.StringP("capability", "c", "", "capability key")
	roles := flags.StringSlice("roles", nil, "principal global roles (vote)")
	caps := flags.StringSlice("grant", nil, "capabilities granted by the membership (assign)")
	overrides := flags.StringToString("flag", nil, "capability=true|false override entries (assign)")
	createdBy := flags.String("by", "", "acting user recorded as creator (assign)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	svc, err := openServices(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer svc.Close()

	admin := &cli.AdminCLI{
		Memberships: svc.members,
		Voter:       svc.voter,
		Sync:        svc.sync,
		Grants:      svc.grants,
		Cache:       svc.cached,
		Stdout:      stdout,
		JSON:        *asJSON,
	}

	switch command {
	case "sync":
		return admin.Synchronize(ctx)
	case "grant":
		return admin.Grant(ctx, *role, *capabilityKey)
	case "assign":
		flagValues := make(map[string]bool, len(*overrides))
		for k, v := range *overrides {
			flagValues[k] = strings.EqualFold(strings.TrimSpace(v), "true")
		}
		return admin.Assign(ctx, cli.AssignOptions{
			ProjectID:    *project,
			UserID:       *user,
			RoleName:     *role,
			Capabilities: *caps,
			Flags:        flagValues,
			CreatedBy:    *createdBy,
		})
	case "revoke":
		return admin.Revoke(ctx, *project, *user)
	case "members":
		return admin.Members(ctx, *project, *user)
	case "vote":
		return admin.Vote(ctx, authz.Principal{ID: *user, Roles: *roles}, authz.ProjectCapabilityRequirement{
			Capability: *capabilityKey,
			ProjectID:  *project,
		})
	}
	return fmt.Errorf("unknown command %q", command)
}
