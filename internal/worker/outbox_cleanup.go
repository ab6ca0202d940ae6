package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

// OutboxCleanupWorker deletes delivered outbox events past retention
type OutboxCleanupWorker struct {
	repo          repository.OutboxRepository
	retentionDays int
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retentionDays int, logger *logger.Logger, metrics *metrics.Metrics) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:          repo,
		retentionDays: retentionDays,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Schedule registers the cleanup on c using a cron spec such as "@daily"
func (w *OutboxCleanupWorker) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if _, err := w.Cleanup(ctx); err != nil {
			w.logger.Error(err, "Error cleaning up outbox events")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return id, nil
}

func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outbox events: %w", err)
	}

	w.metrics.OutboxEventsPruned.Add(float64(rows))
	w.logger.Info("Cleaned up outbox events", "rows", rows, "cutoff", cutoff)
	return rows, nil
}
