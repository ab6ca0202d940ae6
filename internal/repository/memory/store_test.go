package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	payments := NewPaymentRepository(store)
	ctx := context.Background()

	p := &model.Payment{PaymentNumber: "PAY-2024-001", TotalAmount: decimal.NewFromInt(100)}
	p.ID = uuid.New()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, payments.Create(ctx, p))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = payments.GetByID(ctx, p.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestWithinTxCommitsAndNests(t *testing.T) {
	store := NewStore()
	payments := NewPaymentRepository(store)
	ctx := context.Background()

	p := &model.Payment{PaymentNumber: "PAY-2024-002"}
	p.ID = uuid.New()

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		return store.WithinTx(ctx, func(ctx context.Context) error {
			return payments.Create(ctx, p)
		})
	})
	require.NoError(t, err)

	got, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAY-2024-002", got.PaymentNumber)
}

func TestStoredPaymentIsolatedFromCaller(t *testing.T) {
	store := NewStore()
	payments := NewPaymentRepository(store)
	ctx := context.Background()

	p := &model.Payment{PaymentNumber: "PAY-2024-003", Details: model.PaymentDetails{{Kind: model.DetailKindOther}}}
	p.ID = uuid.New()
	require.NoError(t, payments.Create(ctx, p))

	p.Details[0].Kind = model.DetailKindOperation

	got, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DetailKindOther, got.Details[0].Kind)
}

func TestSequenceIncrementConcurrent(t *testing.T) {
	seq := NewSequenceRepository(NewStore())
	ctx := context.Background()

	const n = 50
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := seq.Increment(ctx, "payment_2024")
			assert.NoError(t, err)
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for v := range seen {
		unique[v] = true
	}
	assert.Len(t, unique, n)
}

func TestMedicalRecordAppendIsIdempotent(t *testing.T) {
	repo := NewMedicalRecordRepository(NewStore())
	ctx := context.Background()
	patient, op := uuid.New(), uuid.New()

	require.NoError(t, repo.Append(ctx, patient, model.RecordEntryOperation, op))
	require.NoError(t, repo.Append(ctx, patient, model.RecordEntryOperation, op))

	rec, err := repo.GetByPatient(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{op}, rec.OperationIDs)

	assert.Error(t, repo.Append(ctx, patient, model.RecordEntryKind("bogus"), op))
}

func TestOutboxFailureMovesToDead(t *testing.T) {
	repo := NewOutboxRepository(NewStore())
	ctx := context.Background()

	e := &model.OutboxEvent{EventType: "payment.settled", Payload: []byte(`{}`)}
	require.NoError(t, repo.Create(ctx, e))

	require.NoError(t, repo.MarkFailed(ctx, e.ID, "down", 2))
	pending, err := repo.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.OutboxStatusFailed, pending[0].Status)

	require.NoError(t, repo.MarkFailed(ctx, e.ID, "down", 2))
	pending, err = repo.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
