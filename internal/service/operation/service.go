package operation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

// RefundNotifier is told about refunds issued by cancellations
type RefundNotifier interface {
	RefundIssued(ctx context.Context, op *model.Operation, p *model.Payment) error
}

type Deps struct {
	Tx         repository.Transactor
	Operations repository.OperationRepository
	Records    repository.MedicalRecordRepository
	Billing    *billing.Service
	Numbers    sequence.Generator
	Bus        event.Publisher
	RBAC       *rbac.Service
	Notifier   RefundNotifier
	Auditor    *audit.Service
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now}
}

type ScheduleInput struct {
	PatientID         uuid.UUID
	SurgeonID         uuid.UUID
	AssistantID       *uuid.UUID
	AnesthetistID     *uuid.UUID
	VisitID           *uuid.UUID
	OperationType     string
	Category          model.OperationCategory
	AnesthesiaType    model.AnesthesiaType
	ScheduledDate     time.Time
	EstimatedDuration int
	Cost              decimal.Decimal
	PreOpNotes        string
	Actor             model.Actor
}

type CompleteInput struct {
	OperativeReport string
	PostOpReport    string
	Complications   string
	Recommendations string
	// ActualDuration in minutes; derived from the clock times when zero
	ActualDuration int
}

func (in ScheduleInput) validate() error {
	switch {
	case in.PatientID == uuid.Nil:
		return apperrors.Validation("patient is required")
	case in.SurgeonID == uuid.Nil:
		return apperrors.Validation("surgeon is required")
	case strings.TrimSpace(in.OperationType) == "":
		return apperrors.Validation("operation type is required")
	case in.ScheduledDate.IsZero():
		return apperrors.Validation("scheduled date is required")
	case in.Cost.IsNegative():
		return apperrors.Validation("cost must not be negative")
	case in.EstimatedDuration < 0:
		return apperrors.Validation("estimated duration must not be negative")
	}
	switch in.Category {
	case "", model.OperationCategoryMinor, model.OperationCategoryMajor, model.OperationCategoryEmergency:
	default:
		return apperrors.Validation(fmt.Sprintf("unknown category %q", in.Category))
	}
	switch in.AnesthesiaType {
	case "", model.AnesthesiaGeneral, model.AnesthesiaLocal, model.AnesthesiaSpinal,
		model.AnesthesiaEpidural, model.AnesthesiaSedation:
	default:
		return apperrors.Validation(fmt.Sprintf("unknown anesthesia type %q", in.AnesthesiaType))
	}
	return nil
}

// Schedule creates the operation and its unpaid payment atomically
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (*model.Operation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	category := in.Category
	if category == "" {
		category = model.OperationCategoryMinor
	}

	op := &model.Operation{
		PatientID:         in.PatientID,
		SurgeonID:         in.SurgeonID,
		AssistantID:       in.AssistantID,
		AnesthetistID:     in.AnesthetistID,
		OperationType:     in.OperationType,
		Category:          category,
		AnesthesiaType:    in.AnesthesiaType,
		ScheduledDate:     in.ScheduledDate,
		EstimatedDuration: in.EstimatedDuration,
		Cost:              in.Cost,
		PreOpNotes:        in.PreOpNotes,
		Status:            model.OperationStatusPendingPayment,
		CreatedBy:         in.Actor.UserID,
	}
	op.Touch(s.now())

	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.Numbers.Next(ctx, sequence.Operation)
		if err != nil {
			return err
		}
		op.OperationNumber = number

		paid := decimal.Zero
		payment, err := s.Billing.CreatePayment(ctx, billing.CreatePaymentInput{
			PatientID: in.PatientID,
			VisitID:   in.VisitID,
			Details: model.PaymentDetails{{
				Kind:        model.DetailKindOperation,
				ReferenceID: &op.ID,
				Description: in.OperationType,
				Amount:      in.Cost,
			}},
			TotalAmount: &in.Cost,
			PaidAmount:  &paid,
			Actor:       in.Actor,
		})
		if err != nil {
			return err
		}
		op.PaymentID = payment.ID

		if err := s.Operations.Create(ctx, op); err != nil {
			return fmt.Errorf("failed to create operation: %w", err)
		}
		if err := s.Records.Append(ctx, op.PatientID, model.RecordEntryOperation, op.ID); err != nil {
			return fmt.Errorf("failed to update medical record: %w", err)
		}
		return s.transitioned(ctx, op, "", model.AuditActionCreate, event.OperationScheduled, in.Actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Operation scheduled", "operation_number", op.OperationNumber, "surgeon_id", op.SurgeonID.String())
	return op, nil
}

// HandlePaymentSettled unlocks the operation billed by the settled payment.
// Payments of other kinds and operations past the gate are ignored.
func (s *Service) HandlePaymentSettled(ctx context.Context, e event.Event) error {
	paymentID := e.AggregateID
	if payload, ok := e.Payload.(event.PaymentSettledPayload); ok {
		paymentID = payload.PaymentID
	}

	found, err := s.Operations.GetByPaymentID(ctx, paymentID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find operation for payment: %w", err)
	}

	return s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		op, err := s.Operations.GetForUpdate(ctx, found.ID)
		if err != nil {
			return err
		}

		switch op.Status {
		case model.OperationStatusPendingPayment:
			op.Status = model.OperationStatusScheduled
			op.IsPaid = true
			op.UpdatedAt = s.now()
			if err := s.Operations.Update(ctx, op); err != nil {
				return fmt.Errorf("failed to unlock operation: %w", err)
			}
			s.Logger.Info("Operation unlocked by payment", "operation_number", op.OperationNumber)
			return s.transitioned(ctx, op, model.OperationStatusPendingPayment, model.AuditActionUpdate, event.OperationUnlocked, uuid.Nil)
		case model.OperationStatusScheduled:
			if op.IsPaid {
				return nil
			}
			op.IsPaid = true
			op.UpdatedAt = s.now()
			return s.Operations.Update(ctx, op)
		}
		return nil
	})
}

// UpdatePayment applies a payment change to the operation's bill. Settling it
// unlocks the operation in the same transaction.
func (s *Service) UpdatePayment(ctx context.Context, id uuid.UUID, upd billing.PaymentUpdate) (*model.OperationWithPayment, error) {
	var out *model.OperationWithPayment
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		op, err := s.Operations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if op.Status == model.OperationStatusCancelled {
			return apperrors.InvalidTransition("operation", string(op.Status), "pay")
		}
		payment, err := s.Billing.ApplyPaymentUpdate(ctx, op.PaymentID, upd)
		if err != nil {
			return err
		}
		if op, err = s.Operations.GetByID(ctx, id); err != nil {
			return err
		}
		out = &model.OperationWithPayment{Operation: op, Payment: payment}
		return nil
	})
	return out, err
}

// Start moves a scheduled operation into the theatre. Only the assigned
// surgeon may start it.
func (s *Service) Start(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Operation, error) {
	var op *model.Operation
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		op, err = s.Operations.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if op.Status != model.OperationStatusScheduled {
			return apperrors.InvalidTransition("operation", string(op.Status), "start")
		}
		if op.SurgeonID != actor.UserID {
			return apperrors.Forbidden("only the assigned surgeon can start this operation")
		}

		now := s.now()
		op.ActualDate = &now
		op.StartTime = now.Format("15:04")
		op.Status = model.OperationStatusInProgress
		op.UpdatedAt = now
		if err := s.Operations.Update(ctx, op); err != nil {
			return fmt.Errorf("failed to start operation: %w", err)
		}
		return s.transitioned(ctx, op, model.OperationStatusScheduled, model.AuditActionStart, event.OperationStarted, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, in CompleteInput, actor model.Actor) (*model.Operation, error) {
	if in.ActualDuration < 0 {
		return nil, apperrors.Validation("actual duration must not be negative")
	}

	var op *model.Operation
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		op, err = s.Operations.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if op.Status != model.OperationStatusInProgress {
			return apperrors.InvalidTransition("operation", string(op.Status), "complete")
		}

		now := s.now()
		op.OperativeReport = in.OperativeReport
		op.PostOpReport = in.PostOpReport
		op.Complications = in.Complications
		op.Recommendations = in.Recommendations
		op.EndTime = now.Format("15:04")
		op.ActualDuration = in.ActualDuration
		if op.ActualDuration == 0 {
			if minutes, ok := clockMinutes(op.StartTime, op.EndTime); ok {
				op.ActualDuration = minutes
			}
		}
		op.Status = model.OperationStatusCompleted
		op.UpdatedAt = now

		if err := s.Operations.Update(ctx, op); err != nil {
			return fmt.Errorf("failed to complete operation: %w", err)
		}
		return s.transitioned(ctx, op, model.OperationStatusInProgress, model.AuditActionComplete, event.OperationCompleted, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Cancel aborts an operation before completion. A paid operation has its
// payment refunded and billing staff are notified once the change commits.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (*model.Operation, error) {
	if err := s.RBAC.Authorize(actor, rbac.ActionOperationCancel); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("cancellation reason is required")
	}

	var (
		op       *model.Operation
		refunded *model.Payment
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		op, err = s.Operations.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if op.Status.Terminal() {
			return apperrors.InvalidTransition("operation", string(op.Status), "cancel")
		}
		from := op.Status

		if op.IsPaid {
			payment, err := s.Billing.Get(ctx, op.PaymentID)
			if err != nil {
				return err
			}
			if payment.PaidAmount.IsPositive() && !payment.IsRefunded {
				if refunded, err = s.Billing.Refund(ctx, payment.ID, "Operation cancelled: "+reason, actor); err != nil {
					return err
				}
			}
			op.IsPaid = false
		}
		if _, err := s.Billing.Close(ctx, op.PaymentID, "Operation cancelled: "+reason, actor); err != nil {
			return err
		}

		now := s.now()
		by := actor.UserID
		op.Status = model.OperationStatusCancelled
		op.CancellationReason = reason
		op.CancelledBy = &by
		op.CancelledAt = &now
		op.UpdatedAt = now
		if err := s.Operations.Update(ctx, op); err != nil {
			return fmt.Errorf("failed to cancel operation: %w", err)
		}
		return s.transitioned(ctx, op, from, model.AuditActionCancel, event.OperationCancelled, by)
	})
	if err != nil {
		return nil, err
	}

	if refunded != nil && s.Notifier != nil {
		if err := s.Notifier.RefundIssued(ctx, op, refunded); err != nil {
			s.Logger.Error(err, "Failed to send refund notice", "operation_number", op.OperationNumber)
		}
	}
	return op, nil
}

func (s *Service) transitioned(ctx context.Context, op *model.Operation, from model.OperationStatus, action string, t event.Type, actorID uuid.UUID) error {
	if err := s.Auditor.Log(ctx, actorID, action, model.AuditEntityOperation, op.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": from, "to": op.Status},
	}); err != nil {
		return err
	}
	if err := s.Bus.Publish(ctx, event.New(t, op.ID, event.StatusChangedPayload{
		ID: op.ID, From: string(from), To: string(op.Status), ActorID: actorID,
	})); err != nil {
		return err
	}
	s.Metrics.Transition(model.AuditEntityOperation, string(op.Status))
	return nil
}

// clockMinutes returns end minus start for "HH:MM" clock times, wrapping
// past midnight
func clockMinutes(start, end string) (int, bool) {
	s, ok := parseClock(start)
	if !ok {
		return 0, false
	}
	e, ok := parseClock(end)
	if !ok {
		return 0, false
	}
	d := e - s
	if d < 0 {
		d += 24 * 60
	}
	return d, true
}

func parseClock(v string) (int, bool) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
