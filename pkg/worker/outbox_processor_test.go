package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/memory"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	return nil, args.Error(1)
}

func (m *mockBroker) Close() error {
	return nil
}

func newProcessor(t *testing.T, broker *mockBroker, maxRetries int) (*OutboxProcessor, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	p, err := NewOutboxProcessor(
		store,
		memory.NewOutboxRepository(store),
		broker,
		OutboxProcessorConfig{
			BatchSize:     10,
			PollInterval:  time.Second,
			RetryAttempts: 2,
			RetryDelay:    time.Millisecond,
			MaxRetries:    maxRetries,
		},
		logger.Nop(),
		metrics.NewMetrics("test", prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	return p, store
}

func seedEvent(t *testing.T, store *memory.Store) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"payment_id": uuid.NewString()})
	err := memory.NewOutboxRepository(store).Create(context.Background(), &model.OutboxEvent{
		EventType:   "payment.settled",
		AggregateID: uuid.New(),
		Payload:     payload,
	})
	require.NoError(t, err)
}

func TestProcessBatchDeliversOnce(t *testing.T) {
	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, "payment.settled", mock.Anything).Return(nil)
	p, store := newProcessor(t, broker, 3)
	seedEvent(t, store)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	broker.AssertNumberOfCalls(t, "Publish", 1)
}

func TestProcessBatchRetriesThenGivesUp(t *testing.T) {
	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, "payment.settled", mock.Anything).Return(errors.New("broker down"))
	p, store := newProcessor(t, broker, 1)
	seedEvent(t, store)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	broker.AssertNumberOfCalls(t, "Publish", 2)

	pending, err := memory.NewOutboxRepository(store).GetPendingEventsWithLock(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "event should be dead after exhausting retries")
}

func TestNewOutboxProcessorRejectsBadConfig(t *testing.T) {
	store := memory.NewStore()
	_, err := NewOutboxProcessor(store, memory.NewOutboxRepository(store), new(mockBroker),
		OutboxProcessorConfig{}, logger.Nop(), metrics.NewMetrics("test", prometheus.NewRegistry()))
	assert.Error(t, err)
}
