package visit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type Deps struct {
	Tx      repository.Transactor
	Visits  repository.VisitRepository
	Records repository.MedicalRecordRepository
	Billing *billing.Service
	Numbers sequence.Generator
	Bus     event.Publisher
	Auditor *audit.Service
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now}
}

type CreateInput struct {
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	Reason             string
	Notes              string
	TotalAmount        decimal.Decimal
	DiscountPercentage *decimal.Decimal
	// PaidAmount defaults to the final amount
	PaidAmount *decimal.Decimal
	Method     model.PaymentMethod
	Actor      model.Actor
}

type UpdateInput struct {
	Reason     *string
	Notes      *string
	PaidAmount *decimal.Decimal
	Actor      model.Actor
}

// Create opens a visit. Consultations are paid upfront: the visit is refused
// unless the paid amount covers the final amount.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.VisitWithPayment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperrors.Validation("patient is required")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperrors.Validation("doctor is required")
	}

	pct := decimal.Zero
	if in.DiscountPercentage != nil {
		pct = *in.DiscountPercentage
	}
	if err := billing.ValidateAmounts(in.TotalAmount, pct, decimal.Zero); err != nil {
		return nil, err
	}
	final := billing.Compute(in.TotalAmount, pct, decimal.Zero).FinalAmount

	paid := final
	if in.PaidAmount != nil {
		paid = *in.PaidAmount
	}
	if paid.LessThan(final) {
		s.Metrics.VisitGateRejects.Inc()
		return nil, apperrors.Validation("payment must be complete before the visit is created").
			WithDetail("required", final).
			WithDetail("provided", paid).
			WithDetail("missing", final.Sub(paid))
	}

	v := &model.Visit{
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Reason:    strings.TrimSpace(in.Reason),
		Notes:     in.Notes,
		IsPaid:    true,
		Status:    model.VisitStatusWaitingConsultation,
		CreatedBy: in.Actor.UserID,
	}
	now := s.now()
	v.Touch(now)
	v.StartTime = now

	var payment *model.Payment
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.Numbers.Next(ctx, sequence.Visit)
		if err != nil {
			return err
		}
		v.VisitNumber = number

		payment, err = s.Billing.CreatePayment(ctx, billing.CreatePaymentInput{
			PatientID: v.PatientID,
			VisitID:   &v.ID,
			Details: model.PaymentDetails{{
				Kind:        model.DetailKindConsultation,
				ReferenceID: &v.ID,
				Description: v.Reason,
				Amount:      in.TotalAmount,
			}},
			TotalAmount:        &in.TotalAmount,
			DiscountPercentage: &pct,
			PaidAmount:         &final,
			Method:             in.Method,
			Actor:              in.Actor,
		})
		if err != nil {
			return err
		}
		v.PaymentID = payment.ID

		if err := s.Visits.Create(ctx, v); err != nil {
			return fmt.Errorf("failed to create visit: %w", err)
		}
		if err := s.Records.Append(ctx, v.PatientID, model.RecordEntryVisit, v.ID); err != nil {
			return fmt.Errorf("failed to update medical record: %w", err)
		}
		return s.transitioned(ctx, v, "", model.AuditActionCreate, event.VisitCreated, in.Actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Visit opened", "visit_number", v.VisitNumber)
	return &model.VisitWithPayment{Visit: v, Payment: payment}, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*model.Visit, error) {
	var v *model.Visit
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.Visits.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureOwnVisit(v, in.Actor); err != nil {
			return err
		}
		if v.Status.Closed() {
			return apperrors.InvalidTransition("visit", string(v.Status), "update")
		}
		from := v.Status

		if in.Reason != nil {
			v.Reason = strings.TrimSpace(*in.Reason)
		}
		if in.Notes != nil {
			v.Notes = *in.Notes
		}
		if in.PaidAmount != nil {
			payment, err := s.Billing.ApplyPaymentUpdate(ctx, v.PaymentID, billing.PaymentUpdate{
				PaidAmount: in.PaidAmount,
				Actor:      in.Actor,
			})
			if err != nil {
				return err
			}
			v.IsPaid = payment.Status == model.PaymentStatusPaid
			if v.IsPaid && v.Status == model.VisitStatusWaitingConsultation {
				v.Status = model.VisitStatusInConsultation
			}
		}

		v.UpdatedAt = s.now()
		if err := s.Visits.Update(ctx, v); err != nil {
			return fmt.Errorf("failed to update visit: %w", err)
		}
		return s.transitioned(ctx, v, from, model.AuditActionUpdate, event.VisitUpdated, in.Actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Finish closes the visit, flagging it when its payment still carries debt
func (s *Service) Finish(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.VisitWithPayment, error) {
	var (
		v       *model.Visit
		payment *model.Payment
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.Visits.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if v.Status.Closed() {
			return apperrors.InvalidTransition("visit", string(v.Status), "finish")
		}
		if payment, err = s.Billing.Get(ctx, v.PaymentID); err != nil {
			return err
		}

		from := v.Status
		now := s.now()
		v.Status = model.VisitStatusFinished
		if payment.DebtStatus == model.DebtStatusActive {
			v.Status = model.VisitStatusFinishedWithDebt
		}
		v.EndTime = &now
		v.UpdatedAt = now
		if err := s.Visits.Update(ctx, v); err != nil {
			return fmt.Errorf("failed to finish visit: %w", err)
		}
		return s.transitioned(ctx, v, from, model.AuditActionComplete, event.VisitFinished, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return &model.VisitWithPayment{Visit: v, Payment: payment}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.VisitWithPayment, error) {
	v, err := s.Visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureOwnVisit(v, actor); err != nil {
		return nil, err
	}
	payment, err := s.Billing.Get(ctx, v.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load visit payment: %w", err)
	}
	return &model.VisitWithPayment{Visit: v, Payment: payment}, nil
}

// List restricts doctors to their own visits
func (s *Service) List(ctx context.Context, filter model.VisitFilter, actor model.Actor) ([]*model.Visit, error) {
	if onlyDoctor(actor) {
		id := actor.UserID
		filter.DoctorID = &id
	}
	visits, err := s.Visits.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

// Today lists the visits started today that are still open. Doctors only see
// their own.
func (s *Service) Today(ctx context.Context, actor model.Actor) ([]*model.Visit, error) {
	start, end := s.today()
	return s.List(ctx, model.VisitFilter{From: &start, To: &end, Open: true}, actor)
}

// TodayForDoctor is the doctor's own queue for today
func (s *Service) TodayForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Visit, error) {
	start, end := s.today()
	visits, err := s.Visits.List(ctx, model.VisitFilter{DoctorID: &doctorID, From: &start, To: &end, Open: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

func (s *Service) today() (time.Time, time.Time) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

func (s *Service) transitioned(ctx context.Context, v *model.Visit, from model.VisitStatus, action string, t event.Type, actorID uuid.UUID) error {
	if err := s.Auditor.Log(ctx, actorID, action, model.AuditEntityVisit, v.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": from, "to": v.Status},
	}); err != nil {
		return err
	}
	if err := s.Bus.Publish(ctx, event.New(t, v.ID, event.StatusChangedPayload{
		ID: v.ID, From: string(from), To: string(v.Status), ActorID: actorID,
	})); err != nil {
		return err
	}
	if from != v.Status {
		s.Metrics.Transition(model.AuditEntityVisit, string(v.Status))
	}
	return nil
}

// onlyDoctor is a doctor without front-desk or admin rights
func onlyDoctor(actor model.Actor) bool {
	return actor.HasRole(model.RoleDoctor) && !actor.HasRole(model.RoleSecretary) && !actor.HasRole(model.RoleAdmin)
}

func ensureOwnVisit(v *model.Visit, actor model.Actor) error {
	if onlyDoctor(actor) && v.DoctorID != actor.UserID {
		return apperrors.Forbidden("access to this visit is denied")
	}
	return nil
}
