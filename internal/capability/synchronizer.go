package capability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-authz/internal/audit"
)

// ActionCapabilitySeeded is the audit action recorded for every seeded grant.
const ActionCapabilitySeeded = "security.capability.seeded"

// DescriptorSource lists declared capabilities.
type DescriptorSource interface {
	All() []Descriptor
}

// TableChecker reports whether a table is ready for use.
type TableChecker interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// AuditSink receives audit entries.
type AuditSink interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Invalidator drops cached grant lookups.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SyncReport describes one Synchronize run.
type SyncReport struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	Skipped       bool      `json:"skipped"`
	SkipReason    string    `json:"skip_reason,omitempty"`
	AuditEnabled  bool      `json:"audit_enabled"`
	Created       []Grant   `json:"created"`
	Audited       int       `json:"audited"`
	AuditFailures int       `json:"audit_failures"`
}

// SynchronizerConfig collects the synchronizer dependencies. Tables, Audit and
// Cache are optional: a nil Tables treats every table as present.
type SynchronizerConfig struct {
	Registry DescriptorSource
	Store    Store
	Tables   TableChecker
	Audit    AuditSink
	Cache    Invalidator
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Synchronizer seeds default role grants declared by modules. It only adds
// grants; removing a capability from a manifest leaves its grants in place.
type Synchronizer struct {
	registry DescriptorSource
	store    Store
	tables   TableChecker
	audit    AuditSink
	cache    Invalidator
	logger   *slog.Logger
	clock    func() time.Time
}

// NewSynchronizer builds a Synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	s := &Synchronizer{
		registry: cfg.Registry,
		store:    cfg.Store,
		tables:   cfg.Tables,
		audit:    cfg.Audit,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Synchronize inserts every missing (default role, capability) pair. Running
// it again with an unchanged registry creates nothing and records nothing.
func (s *Synchronizer) Synchronize(ctx context.Context) (SyncReport, error) {
	report := SyncReport{RunID: uuid.NewString(), StartedAt: s.clock()}
	logger := s.logger.With(slog.String("run_id", report.RunID))

	if s.store == nil || s.registry == nil {
		return report, fmt.Errorf("capability: synchronizer not configured")
	}
	if !s.tableReady(ctx, logger, Table) {
		report.Skipped = true
		report.SkipReason = Table + " table not ready"
		logger.Info("capability sync skipped", slog.String("reason", report.SkipReason))
		return report, nil
	}
	report.AuditEnabled = s.audit != nil && s.tableReady(ctx, logger, audit.Table)

	pairs, err := s.store.Pairs(ctx)
	if err != nil {
		return report, fmt.Errorf("capability: load grants: %w", err)
	}
	existing := make(map[string]struct{}, len(pairs))
	for _, g := range pairs {
		existing[g.Key()] = struct{}{}
	}

	for _, d := range s.registry.All() {
		for _, role := range d.DefaultRoles {
			g := Grant{RoleName: role, Capability: d.Key}
			if g.RoleName == "" {
				continue
			}
			if _, ok := existing[g.Key()]; ok {
				continue
			}
			existing[g.Key()] = struct{}{}
			inserted, err := s.store.Insert(ctx, g)
			if err != nil {
				return report, fmt.Errorf("capability: insert %s: %w", g.Key(), err)
			}
			if !inserted {
				continue
			}
			report.Created = append(report.Created, g)
			logger.Debug("capability seeded", slog.String("role", g.RoleName), slog.String("capability", g.Capability), slog.String("module", d.Module))
			if !report.AuditEnabled {
				continue
			}
			if err := s.audit.Record(ctx, seededEntry(g, d.Module, report)); err != nil {
				report.AuditFailures++
				logger.Warn("record capability audit", slog.String("grant", g.Key()), slog.Any("error", err))
				continue
			}
			report.Audited++
		}
	}

	if len(report.Created) > 0 && s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logger.Warn("invalidate grant cache", slog.Any("error", err))
		}
	}

	logger.Info("capability sync finished",
		slog.Int("created", len(report.Created)),
		slog.Int("audited", report.Audited),
		slog.Duration("duration", s.clock().Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *Synchronizer) tableReady(ctx context.Context, logger *slog.Logger, table string) bool {
	if s.tables == nil {
		return true
	}
	ok, err := s.tables.TableExists(ctx, table)
	if err != nil {
		logger.Warn("table check failed", slog.String("table", table), slog.Any("error", err))
		return false
	}
	return ok
}

func seededEntry(g Grant, module string, report SyncReport) audit.Entry {
	return audit.Entry{
		Action:   ActionCapabilitySeeded,
		Entity:   Table,
		EntityID: g.Key(),
		At:       report.StartedAt,
		Meta: map[string]any{
			"role":       g.RoleName,
			"capability": g.Capability,
			"module":     module,
			"run_id":     report.RunID,
		},
	}
}
