package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/memory"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type fixture struct {
	svc       *Service
	store     *memory.Store
	collector *event.Collector
	bus       *event.Bus
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	collector := &event.Collector{}
	bus := event.NewBus(collector)
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	svc := NewService(
		store,
		memory.NewPaymentRepository(store),
		memory.NewMedicalRecordRepository(store),
		sequence.FromRepository(memory.NewSequenceRepository(store)),
		bus,
		audit.NewService(memory.NewAuditRepository(store)),
		m,
		logger.Nop(),
	)
	return &fixture{svc: svc, store: store, collector: collector, bus: bus, metrics: m}
}

var secretary = model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleSecretary}}

func dec(v int64) *decimal.Decimal {
	x := decimal.NewFromInt(v)
	return &x
}

func consultation(amount int64) model.PaymentDetails {
	return model.PaymentDetails{{Kind: model.DetailKindConsultation, Amount: decimal.NewFromInt(amount)}}
}

func TestCreatePaymentPartial(t *testing.T) {
	f := newFixture(t)
	patient := uuid.New()

	p, err := f.svc.CreatePayment(context.Background(), CreatePaymentInput{
		PatientID:          patient,
		Details:            consultation(1000),
		DiscountPercentage: dec(10),
		PaidAmount:         dec(500),
		Actor:              secretary,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^PAY-\d{4}-001$`, p.PaymentNumber)
	assert.True(t, decimal.NewFromInt(100).Equal(p.DiscountAmount))
	assert.True(t, decimal.NewFromInt(900).Equal(p.FinalAmount))
	assert.True(t, decimal.NewFromInt(400).Equal(p.RemainingAmount))
	assert.Equal(t, model.PaymentStatusPartial, p.Status)
	assert.Equal(t, model.DebtStatusActive, p.DebtStatus)
	assert.True(t, p.HasDebt)
	assert.Equal(t, model.PaymentMethodCash, p.PaymentMethod)
	assert.NotNil(t, p.PaymentDate)
	assert.Equal(t, []event.Type{event.PaymentCreated}, f.collector.Types())

	record, err := memory.NewMedicalRecordRepository(f.store).GetByPatient(context.Background(), patient)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p.ID}, record.PaymentIDs)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentsCreated.WithLabelValues("consultation")))
}

func TestCreatePaymentBornPaidPublishesSettled(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreatePayment(context.Background(), CreatePaymentInput{
		PatientID:  uuid.New(),
		Details:    consultation(500),
		PaidAmount: dec(500),
		Actor:      secretary,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	assert.Equal(t, []event.Type{event.PaymentCreated, event.PaymentSettled}, f.collector.Types())
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   CreatePaymentInput
	}{
		{"no patient", CreatePaymentInput{Details: consultation(10)}},
		{"no details", CreatePaymentInput{PatientID: uuid.New()}},
		{"negative line", CreatePaymentInput{PatientID: uuid.New(), Details: consultation(-10)}},
		{"bad kind", CreatePaymentInput{PatientID: uuid.New(), Details: model.PaymentDetails{{Kind: "tip", Amount: decimal.NewFromInt(1)}}}},
		{"bad method", CreatePaymentInput{PatientID: uuid.New(), Details: consultation(10), Method: "cheque"}},
		{"discount over 100", CreatePaymentInput{PatientID: uuid.New(), Details: consultation(10), DiscountPercentage: dec(120)}},
		{"negative paid", CreatePaymentInput{PatientID: uuid.New(), Details: consultation(10), PaidAmount: dec(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePayment(context.Background(), tt.in)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
	assert.Empty(t, f.collector.Events)
}

func TestCreatePaymentRollsBackWhenSubscriberFails(t *testing.T) {
	f := newFixture(t)
	f.bus.Subscribe(event.PaymentSettled, func(context.Context, event.Event) error {
		return errors.New("subscriber down")
	})

	_, err := f.svc.CreatePayment(context.Background(), CreatePaymentInput{
		PatientID:  uuid.New(),
		Details:    consultation(300),
		PaidAmount: dec(300),
	})
	require.Error(t, err)

	list, err := f.svc.List(context.Background(), model.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApplyPaymentUpdateSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(2000)})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusUnpaid, p.Status)

	var settled []uuid.UUID
	f.bus.Subscribe(event.PaymentSettled, func(_ context.Context, e event.Event) error {
		settled = append(settled, e.Payload.(event.PaymentSettledPayload).PaymentID)
		return nil
	})

	p, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{PaidAmount: dec(1000), Actor: secretary})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPartial, p.Status)
	assert.Empty(t, settled)

	p, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{
		PaidAmount: dec(2000),
		Method:     model.PaymentMethodMobileMoney,
		Repayment:  &model.Repayment{Amount: decimal.NewFromInt(1000), Note: "balance"},
		Actor:      secretary,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	assert.Equal(t, model.DebtStatusSettled, p.DebtStatus)
	assert.Equal(t, model.PaymentMethodMobileMoney, p.PaymentMethod)
	require.Len(t, p.Repayments, 1)
	assert.Equal(t, secretary.UserID, p.Repayments[0].ValidatedBy)
	assert.Equal(t, model.PaymentMethodMobileMoney, p.Repayments[0].Method)
	require.NotNil(t, p.ValidatedBy)
	assert.Equal(t, secretary.UserID, *p.ValidatedBy)
	assert.Equal(t, []uuid.UUID{p.ID}, settled)

	// already paid: no second settlement
	_, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{PaidAmount: dec(2100), Actor: secretary})
	require.NoError(t, err)
	assert.Len(t, settled, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentsSettled))
}

func TestApplyPaymentUpdateDiscountOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(1000), PaidAmount: dec(500)})
	require.NoError(t, err)

	p, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{DiscountPercentage: dec(50), Actor: secretary})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(p.PaidAmount))
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	assert.True(t, p.HasDiscount)
}

func TestApplyPaymentUpdateRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ApplyPaymentUpdate(ctx, uuid.New(), PaymentUpdate{PaidAmount: dec(1)})
	assert.True(t, apperrors.IsNotFound(err))

	p, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(100), PaidAmount: dec(100)})
	require.NoError(t, err)

	_, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{PaidAmount: dec(-5)})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Refund(ctx, p.ID, "duplicate", secretary)
	require.NoError(t, err)
	_, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{PaidAmount: dec(50)})
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(1000)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{PaidAmount: dec(int64(i * 50)), Actor: secretary})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	want := Compute(got.TotalAmount, got.DiscountPercentage, got.PaidAmount)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.RemainingAmount.Equal(got.RemainingAmount))
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(800), PaidAmount: dec(800)})
	require.NoError(t, err)

	p, err = f.svc.Refund(ctx, p.ID, "Operation cancelled: patient unwell", secretary)
	require.NoError(t, err)
	assert.True(t, p.IsRefunded)
	assert.True(t, p.ExcludeFromStats)
	assert.True(t, decimal.NewFromInt(800).Equal(p.RefundAmount))
	assert.Equal(t, "Operation cancelled: patient unwell", p.RefundReason)
	require.NotNil(t, p.RefundedBy)
	assert.Equal(t, secretary.UserID, *p.RefundedBy)

	_, err = f.svc.Refund(ctx, p.ID, "again", secretary)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	history, err := audit.NewService(memory.NewAuditRepository(f.store)).History(ctx, model.AuditEntityPayment, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSummaryAndDebtors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(1000), DiscountPercentage: dec(10), PaidAmount: dec(500)})
	require.NoError(t, err)
	_, err = f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(300), PaidAmount: dec(300)})
	require.NoError(t, err)
	refunded, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(700), PaidAmount: dec(700)})
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, refunded.ID, "cancelled", secretary)
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, model.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.True(t, decimal.NewFromInt(1300).Equal(summary.TotalBilled))
	assert.True(t, decimal.NewFromInt(800).Equal(summary.TotalCollected))
	assert.True(t, decimal.NewFromInt(400).Equal(summary.Outstanding))
	assert.Equal(t, 1, summary.DebtorCount)
	assert.Equal(t, 1, summary.RefundedCount)
	assert.True(t, decimal.NewFromInt(700).Equal(summary.TotalRefunded))

	debtors, err := f.svc.Debtors(ctx, model.PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.True(t, debtors[0].HasDebt)
}

func TestClosedPaymentRefusesUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePayment(ctx, CreatePaymentInput{PatientID: uuid.New(), Details: consultation(2000)})
	require.NoError(t, err)

	closed, err := f.svc.Close(ctx, p.ID, "Operation cancelled: no theatre", secretary)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed)
	assert.True(t, closed.ExcludeFromStats)
	assert.Equal(t, model.PaymentStatusUnpaid, closed.Status)

	_, err = f.svc.Close(ctx, p.ID, "again", secretary)
	require.NoError(t, err)

	_, err = f.svc.ApplyPaymentUpdate(ctx, p.ID, PaymentUpdate{PaidAmount: dec(2000), Actor: secretary})
	assert.Equal(t, apperrors.ErrInvalidTransition, apperrors.CodeOf(err))

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
	assert.Equal(t, model.PaymentStatusUnpaid, got.Status)

	summary, err := f.svc.Summary(ctx, model.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)

	debtors, err := f.svc.Debtors(ctx, model.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, debtors)
}
