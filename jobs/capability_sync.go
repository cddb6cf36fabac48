package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-authz/internal/capability"
	jobmetrics "github.com/odyssey-erp/odyssey-authz/internal/jobs"
)

// Synchronizer seeds default grants.
type Synchronizer interface {
	Synchronize(ctx context.Context) (capability.SyncReport, error)
}

// CapabilitySyncJob runs the capability synchronizer from the queue.
type CapabilitySyncJob struct {
	Sync    Synchronizer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCapabilitySyncJob wires dependencies for the sync handler.
func NewCapabilitySyncJob(sync Synchronizer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CapabilitySyncJob {
	return &CapabilitySyncJob{Sync: sync, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCapabilitySync tasks.
func (j *CapabilitySyncJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sync == nil {
		return errors.New("capability sync: handler not configured")
	}
	var payload CapabilitySyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskCapabilitySync)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	report, err := j.Sync.Synchronize(ctx)
	if err != nil {
		logger.Error("capability sync", slog.Any("error", err))
		return err
	}
	if report.Skipped {
		j.Metrics.MarkSkipped("schema_not_ready")
		logger.Warn("capability sync skipped", slog.String("run_id", report.RunID), slog.String("skip_reason", report.SkipReason))
		return nil
	}
	j.Metrics.AddSeeded(len(report.Created))
	logger.Info("capability sync finished",
		slog.String("run_id", report.RunID),
		slog.Int("created", len(report.Created)),
		slog.Int("audit_failures", report.AuditFailures),
	)
	return nil
}

func (j *CapabilitySyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
