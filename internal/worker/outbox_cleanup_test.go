package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/memory"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

func TestCleanupDeletesOnlyOldProcessedEvents(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository(memory.NewStore())

	done := &model.OutboxEvent{EventType: "payment.settled", AggregateID: uuid.New(), Payload: []byte(`{}`)}
	pending := &model.OutboxEvent{EventType: "payment.created", AggregateID: uuid.New(), Payload: []byte(`{}`)}
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.MarkProcessed(ctx, done.ID))

	w := NewOutboxCleanupWorker(repo, 7, logger.Nop(), metrics.NewMetrics("test", prometheus.NewRegistry()))

	rows, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	w.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	rows, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	left, err := repo.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, pending.ID, left[0].ID)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	w := NewOutboxCleanupWorker(memory.NewOutboxRepository(memory.NewStore()), 7, logger.Nop(), metrics.NewMetrics("test", prometheus.NewRegistry()))
	c := cron.New()

	_, err := w.Schedule(context.Background(), c, "not a schedule")
	assert.Error(t, err)

	_, err = w.Schedule(context.Background(), c, "@daily")
	assert.NoError(t, err)
}
