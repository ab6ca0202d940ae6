package operation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

const upcomingLimit = 5

type DoctorDashboard struct {
	Today    []*model.Operation `json:"today"`
	Upcoming []*model.Operation `json:"upcoming"`
	Ongoing  []*model.Operation `json:"ongoing"`
}

type PaymentDashboard struct {
	AwaitingPayment []*model.OperationWithPayment `json:"awaiting_payment"`
	ScheduledPaid   []*model.Operation            `json:"scheduled_paid"`
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.OperationWithPayment, error) {
	op, err := s.Operations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payment, err := s.Billing.Get(ctx, op.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation payment: %w", err)
	}
	return &model.OperationWithPayment{Operation: op, Payment: payment}, nil
}

func (s *Service) List(ctx context.Context, filter model.OperationFilter) ([]*model.Operation, error) {
	ops, err := s.Operations.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// ListForSurgeon returns the operations assigned to surgeonID, newest first
func (s *Service) ListForSurgeon(ctx context.Context, surgeonID uuid.UUID, p model.Pagination) ([]*model.Operation, error) {
	ops, err := s.List(ctx, model.OperationFilter{SurgeonID: &surgeonID, Pagination: p})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops, nil
}

// DoctorDashboard shows the surgeon's day: today's list, the next scheduled
// operations after today and those in progress.
func (s *Service) DoctorDashboard(ctx context.Context, surgeonID uuid.UUID) (*DoctorDashboard, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	today, err := s.List(ctx, model.OperationFilter{SurgeonID: &surgeonID, From: &start, To: &end})
	if err != nil {
		return nil, err
	}
	upcoming, err := s.List(ctx, model.OperationFilter{
		SurgeonID:  &surgeonID,
		Statuses:   []model.OperationStatus{model.OperationStatusScheduled},
		From:       &end,
		Pagination: model.Pagination{Page: 1, PageSize: upcomingLimit},
	})
	if err != nil {
		return nil, err
	}
	ongoing, err := s.List(ctx, model.OperationFilter{
		SurgeonID: &surgeonID,
		Statuses:  []model.OperationStatus{model.OperationStatusInProgress},
	})
	if err != nil {
		return nil, err
	}
	return &DoctorDashboard{Today: today, Upcoming: upcoming, Ongoing: ongoing}, nil
}

// PaymentDashboard lists operations blocked on payment next to the paid,
// scheduled ones.
func (s *Service) PaymentDashboard(ctx context.Context) (*PaymentDashboard, error) {
	pending, err := s.List(ctx, model.OperationFilter{
		Statuses: []model.OperationStatus{model.OperationStatusPendingPayment},
	})
	if err != nil {
		return nil, err
	}
	awaiting := make([]*model.OperationWithPayment, 0, len(pending))
	for _, op := range pending {
		payment, err := s.Billing.Get(ctx, op.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load payment of %s: %w", op.OperationNumber, err)
		}
		awaiting = append(awaiting, &model.OperationWithPayment{Operation: op, Payment: payment})
	}

	scheduled, err := s.List(ctx, model.OperationFilter{
		Statuses: []model.OperationStatus{model.OperationStatusScheduled},
	})
	if err != nil {
		return nil, err
	}
	paid := make([]*model.Operation, 0, len(scheduled))
	for _, op := range scheduled {
		if op.IsPaid {
			paid = append(paid, op)
		}
	}
	return &PaymentDashboard{AwaitingPayment: awaiting, ScheduledPaid: paid}, nil
}

// History groups every operation of a patient by status
func (s *Service) History(ctx context.Context, patientID uuid.UUID) (*model.OperationHistory, error) {
	ops, err := s.List(ctx, model.OperationFilter{PatientID: &patientID, Pagination: model.Pagination{PageSize: 200}})
	if err != nil {
		return nil, err
	}
	h := &model.OperationHistory{
		PatientID: patientID,
		Total:     len(ops),
		ByStatus:  make(map[model.OperationStatus][]*model.Operation),
	}
	for _, op := range ops {
		h.ByStatus[op.Status] = append(h.ByStatus[op.Status], op)
	}
	return h, nil
}
