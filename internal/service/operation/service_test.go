package operation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/memory"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) RefundIssued(ctx context.Context, op *model.Operation, p *model.Payment) error {
	return m.Called(ctx, op, p).Error(0)
}

type fixture struct {
	svc      *Service
	billing  *billing.Service
	notifier *mockNotifier
	clock    time.Time
}

var (
	surgeon   = model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleDoctor}}
	secretary = model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleSecretary}}
	admin     = model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleAdmin}}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	bus := event.NewBus(&event.Collector{})
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	auditor := audit.NewService(memory.NewAuditRepository(store))
	numbers := sequence.FromRepository(memory.NewSequenceRepository(store))
	records := memory.NewMedicalRecordRepository(store)

	billingSvc := billing.NewService(store, memory.NewPaymentRepository(store), records, numbers, bus, auditor, m, logger.Nop())
	notifier := new(mockNotifier)
	svc := NewService(Deps{
		Tx:         store,
		Operations: memory.NewOperationRepository(store),
		Records:    records,
		Billing:    billingSvc,
		Numbers:    numbers,
		Bus:        bus,
		RBAC:       rbac.NewService(nil),
		Notifier:   notifier,
		Auditor:    auditor,
		Metrics:    m,
		Logger:     logger.Nop(),
	})
	f := &fixture{svc: svc, billing: billingSvc, notifier: notifier, clock: time.Date(2024, 3, 12, 9, 30, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.clock }
	bus.Subscribe(event.PaymentSettled, svc.HandlePaymentSettled)
	return f
}

func (f *fixture) schedule(t *testing.T, cost int64) *model.Operation {
	t.Helper()
	op, err := f.svc.Schedule(context.Background(), ScheduleInput{
		PatientID:     uuid.New(),
		SurgeonID:     surgeon.UserID,
		OperationType: "Appendectomy",
		Category:      model.OperationCategoryMajor,
		ScheduledDate: f.clock.Add(48 * time.Hour),
		Cost:          decimal.NewFromInt(cost),
		Actor:         secretary,
	})
	require.NoError(t, err)
	return op
}

func (f *fixture) pay(t *testing.T, op *model.Operation, amount int64) *model.OperationWithPayment {
	t.Helper()
	paid := decimal.NewFromInt(amount)
	out, err := f.svc.UpdatePayment(context.Background(), op.ID, billing.PaymentUpdate{PaidAmount: &paid, Actor: secretary})
	require.NoError(t, err)
	return out
}

func TestScheduleCreatesUnpaidPayment(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 2000)

	assert.Regexp(t, `^OP-\d{4}-001$`, op.OperationNumber)
	assert.Equal(t, model.OperationStatusPendingPayment, op.Status)
	assert.False(t, op.IsPaid)

	got, err := f.svc.Get(context.Background(), op.ID)
	require.NoError(t, err)
	p := got.Payment
	assert.True(t, decimal.NewFromInt(2000).Equal(p.TotalAmount))
	assert.True(t, p.PaidAmount.IsZero())
	assert.Equal(t, model.PaymentStatusUnpaid, p.Status)
	assert.True(t, p.HasDebt)
	require.Len(t, p.Details, 1)
	assert.Equal(t, model.DetailKindOperation, p.Details[0].Kind)
	assert.Equal(t, op.ID, *p.Details[0].ReferenceID)
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Schedule(context.Background(), ScheduleInput{PatientID: uuid.New(), SurgeonID: uuid.New(), ScheduledDate: f.clock})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Schedule(context.Background(), ScheduleInput{
		PatientID: uuid.New(), SurgeonID: uuid.New(), OperationType: "x", ScheduledDate: f.clock,
		Cost: decimal.NewFromInt(-1),
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestPartialPaymentKeepsOperationLocked(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 2000)

	out := f.pay(t, op, 1500)
	assert.Equal(t, model.PaymentStatusPartial, out.Payment.Status)
	assert.Equal(t, model.OperationStatusPendingPayment, out.Status)

	_, err := f.svc.Start(context.Background(), op.ID, surgeon)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestFullPaymentUnlocksAndSurgeonStarts(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 2000)

	out := f.pay(t, op, 2000)
	assert.Equal(t, model.OperationStatusScheduled, out.Status)
	assert.True(t, out.IsPaid)

	other := model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleDoctor}}
	_, err := f.svc.Start(context.Background(), op.ID, other)
	assert.True(t, apperrors.IsForbidden(err))

	started, err := f.svc.Start(context.Background(), op.ID, surgeon)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusInProgress, started.Status)
	assert.Equal(t, "09:30", started.StartTime)
	require.NotNil(t, started.ActualDate)

	f.clock = f.clock.Add(95 * time.Minute)
	done, err := f.svc.Complete(context.Background(), op.ID, CompleteInput{
		OperativeReport: "uneventful",
		PostOpReport:    "stable",
	}, surgeon)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCompleted, done.Status)
	assert.Equal(t, "11:05", done.EndTime)
	assert.Equal(t, 95, done.ActualDuration)
	assert.Equal(t, "uneventful", done.OperativeReport)

	_, err = f.svc.Complete(context.Background(), op.ID, CompleteInput{}, surgeon)
	assert.True(t, apperrors.IsInvalidTransition(err))
	_, err = f.svc.Cancel(context.Background(), op.ID, "late", secretary)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestCompleteKeepsExplicitDuration(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 100)
	f.pay(t, op, 100)
	_, err := f.svc.Start(context.Background(), op.ID, surgeon)
	require.NoError(t, err)

	done, err := f.svc.Complete(context.Background(), op.ID, CompleteInput{ActualDuration: 42}, surgeon)
	require.NoError(t, err)
	assert.Equal(t, 42, done.ActualDuration)
}

func TestHandlePaymentSettledIgnoresUnknownPayments(t *testing.T) {
	f := newFixture(t)
	err := f.svc.HandlePaymentSettled(context.Background(), event.New(event.PaymentSettled, uuid.New(),
		event.PaymentSettledPayload{PaymentID: uuid.New()}))
	assert.NoError(t, err)
}

func TestCancelPaidOperationRefunds(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 2000)
	f.pay(t, op, 2000)

	f.notifier.On("RefundIssued", mock.Anything, mock.AnythingOfType("*model.Operation"), mock.AnythingOfType("*model.Payment")).
		Return(nil).Once()

	cancelled, err := f.svc.Cancel(context.Background(), op.ID, "patient unwell", secretary)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.IsPaid)
	assert.Equal(t, "patient unwell", cancelled.CancellationReason)
	assert.Equal(t, secretary.UserID, *cancelled.CancelledBy)

	got, err := f.svc.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.True(t, got.Payment.IsRefunded)
	assert.True(t, got.Payment.RefundAmount.Equal(got.Payment.PaidAmount))
	assert.Equal(t, "Operation cancelled: patient unwell", got.Payment.RefundReason)
	assert.True(t, got.Payment.ExcludeFromStats)
	f.notifier.AssertExpectations(t)
}

func TestCancelUnpaidOperationSkipsRefund(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 2000)

	cancelled, err := f.svc.Cancel(context.Background(), op.ID, "rescheduled elsewhere", admin)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCancelled, cancelled.Status)

	got, err := f.svc.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.False(t, got.Payment.IsRefunded)
	assert.True(t, got.Payment.IsClosed)
	f.notifier.AssertNotCalled(t, "RefundIssued", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelledOperationBillCannotBeCollected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := f.schedule(t, 2000)

	_, err := f.svc.Cancel(ctx, op.ID, "surgeon unavailable", secretary)
	require.NoError(t, err)

	paid := decimal.NewFromInt(2000)
	_, err = f.billing.ApplyPaymentUpdate(ctx, op.PaymentID, billing.PaymentUpdate{PaidAmount: &paid, Actor: secretary})
	assert.Equal(t, apperrors.ErrInvalidTransition, apperrors.CodeOf(err))

	got, err := f.svc.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCancelled, got.Status)
	assert.False(t, got.IsPaid)
	assert.Equal(t, model.PaymentStatusUnpaid, got.Payment.Status)
	assert.True(t, got.Payment.ExcludeFromStats)

	summary, err := f.billing.Summary(ctx, model.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)
}

func TestCancelPolicy(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 500)

	_, err := f.svc.Cancel(context.Background(), op.ID, "no", surgeon)
	assert.True(t, apperrors.IsForbidden(err))

	// deny wins even when another role would allow
	both := model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleSecretary, model.RoleDoctor}}
	_, err = f.svc.Cancel(context.Background(), op.ID, "no", both)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = f.svc.Cancel(context.Background(), op.ID, " ", secretary)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCancelNotifierFailureDoesNotUndoCancel(t *testing.T) {
	f := newFixture(t)
	op := f.schedule(t, 300)
	f.pay(t, op, 300)
	f.notifier.On("RefundIssued", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	cancelled, err := f.svc.Cancel(context.Background(), op.ID, "equipment failure", secretary)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCancelled, cancelled.Status)
}

func TestDashboardsAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.schedule(t, 1000)
	paid := f.schedule(t, 800)
	f.pay(t, paid, 800)

	board, err := f.svc.PaymentDashboard(ctx)
	require.NoError(t, err)
	require.Len(t, board.AwaitingPayment, 1)
	assert.Equal(t, pending.ID, board.AwaitingPayment[0].ID)
	assert.NotNil(t, board.AwaitingPayment[0].Payment)
	require.Len(t, board.ScheduledPaid, 1)
	assert.Equal(t, paid.ID, board.ScheduledPaid[0].ID)

	doctor, err := f.svc.DoctorDashboard(ctx, surgeon.UserID)
	require.NoError(t, err)
	assert.Empty(t, doctor.Today)
	assert.Len(t, doctor.Upcoming, 1)
	assert.Empty(t, doctor.Ongoing)

	history, err := f.svc.History(ctx, pending.PatientID)
	require.NoError(t, err)
	assert.Equal(t, 1, history.Total)
	assert.Len(t, history.ByStatus[model.OperationStatusPendingPayment], 1)
}

func TestClockMinutes(t *testing.T) {
	m, ok := clockMinutes("08:15", "10:00")
	assert.True(t, ok)
	assert.Equal(t, 105, m)

	m, ok = clockMinutes("23:30", "00:10")
	assert.True(t, ok)
	assert.Equal(t, 40, m)

	_, ok = clockMinutes("", "10:00")
	assert.False(t, ok)
	_, ok = clockMinutes("25:00", "10:00")
	assert.False(t, ok)
}
