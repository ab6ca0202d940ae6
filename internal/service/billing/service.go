package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type CreatePaymentInput struct {
	PatientID uuid.UUID
	VisitID   *uuid.UUID
	Details   model.PaymentDetails
	// TotalAmount defaults to the sum of Details
	TotalAmount        *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	PaidAmount         *decimal.Decimal
	Method             model.PaymentMethod
	Actor              model.Actor
}

// PaymentUpdate changes the inputs of a payment. Nil fields are left alone.
type PaymentUpdate struct {
	PaidAmount         *decimal.Decimal
	DiscountPercentage *decimal.Decimal
	Method             model.PaymentMethod
	Repayment          *model.Repayment
	Actor              model.Actor
}

type Service struct {
	tx       repository.Transactor
	payments repository.PaymentRepository
	records  repository.MedicalRecordRepository
	numbers  sequence.Generator
	bus      event.Publisher
	auditor  *audit.Service
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	tx repository.Transactor,
	payments repository.PaymentRepository,
	records repository.MedicalRecordRepository,
	numbers sequence.Generator,
	bus event.Publisher,
	auditor *audit.Service,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		tx:       tx,
		payments: payments,
		records:  records,
		numbers:  numbers,
		bus:      bus,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePayment stores a new payment with its debt snapshot and links it to
// the patient's medical record. It joins the transaction carried by ctx.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (*model.Payment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperrors.Validation("patient is required")
	}
	if len(in.Details) == 0 {
		return nil, apperrors.Validation("payment needs at least one detail")
	}
	for _, line := range in.Details {
		if !line.Kind.Valid() {
			return nil, apperrors.Validation(fmt.Sprintf("unknown detail kind %q", line.Kind))
		}
		if line.Amount.IsNegative() {
			return nil, apperrors.Validation("detail amount must not be negative").WithDetail("kind", line.Kind)
		}
	}

	method := in.Method
	if method == "" {
		method = model.PaymentMethodCash
	}
	if !method.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown payment method %q", method))
	}

	total := valueOr(in.TotalAmount, in.Details.Sum())
	pct := valueOr(in.DiscountPercentage, decimal.Zero)
	paid := valueOr(in.PaidAmount, decimal.Zero)
	if err := ValidateAmounts(total, pct, paid); err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Payment{
		PatientID:          in.PatientID,
		VisitID:            in.VisitID,
		Details:            in.Details,
		TotalAmount:        total,
		DiscountPercentage: pct,
		PaidAmount:         paid,
		PaymentMethod:      method,
		Repayments:         model.Repayments{},
		RefundAmount:       decimal.Zero,
		CreatedBy:          in.Actor.UserID,
	}
	p.Touch(now)
	Recompute(p)
	if paid.IsPositive() {
		p.PaymentDate = &now
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, sequence.Payment)
		if err != nil {
			return err
		}
		p.PaymentNumber = number

		if err := s.payments.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		if err := s.records.Append(ctx, p.PatientID, model.RecordEntryPayment, p.ID); err != nil {
			return fmt.Errorf("failed to update medical record: %w", err)
		}
		if err := s.auditor.Log(ctx, in.Actor.UserID, model.AuditActionCreate, model.AuditEntityPayment, p.ID,
			&audit.LogOptions{Changes: p}); err != nil {
			return err
		}
		if err := s.bus.Publish(ctx, event.New(event.PaymentCreated, p.ID, p)); err != nil {
			return err
		}
		if p.Status == model.PaymentStatusPaid {
			return s.publishSettled(ctx, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentsCreated.WithLabelValues(string(primaryKind(p.Details))).Inc()
	if paid.IsPositive() {
		s.metrics.AmountCollected.Add(paid.InexactFloat64())
	}
	s.logger.Info("Payment created",
		"payment_number", p.PaymentNumber,
		"status", string(p.Status),
		"final_amount", p.FinalAmount.String())
	return p, nil
}

// ApplyPaymentUpdate locks the payment, applies upd and recomputes the debt
// snapshot. A transition into paid publishes PaymentSettled in the same
// transaction.
func (s *Service) ApplyPaymentUpdate(ctx context.Context, id uuid.UUID, upd PaymentUpdate) (*model.Payment, error) {
	if upd.Method != "" && !upd.Method.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown payment method %q", upd.Method))
	}

	var (
		p       *model.Payment
		delta   decimal.Decimal
		settled bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.IsRefunded {
			return apperrors.InvalidTransition("payment", "refunded", "update")
		}
		if p.IsClosed {
			return apperrors.InvalidTransition("payment", "closed", "update")
		}

		pct := valueOr(upd.DiscountPercentage, p.DiscountPercentage)
		paid := valueOr(upd.PaidAmount, p.PaidAmount)
		if err := ValidateAmounts(p.TotalAmount, pct, paid); err != nil {
			return err
		}

		now := s.now()
		before := p.Status
		delta = paid.Sub(p.PaidAmount)

		p.DiscountPercentage = pct
		p.PaidAmount = paid
		if upd.Method != "" {
			p.PaymentMethod = upd.Method
		}
		if upd.Repayment != nil {
			r := *upd.Repayment
			if r.Amount.IsNegative() {
				return apperrors.Validation("repayment amount must not be negative")
			}
			if r.Date.IsZero() {
				r.Date = now
			}
			if r.Method == "" {
				r.Method = p.PaymentMethod
			}
			r.ValidatedBy = upd.Actor.UserID
			p.Repayments = append(p.Repayments, r)
		}
		if delta.IsPositive() {
			p.PaymentDate = &now
		}
		actor := upd.Actor.UserID
		p.ValidatedBy = &actor
		p.UpdatedAt = now
		Recompute(p)

		if err := s.payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		if err := s.auditor.Log(ctx, actor, model.AuditActionUpdate, model.AuditEntityPayment, p.ID,
			&audit.LogOptions{Changes: map[string]interface{}{
				"from_status":         before,
				"to_status":           p.Status,
				"paid_amount":         p.PaidAmount,
				"discount_percentage": p.DiscountPercentage,
			}}); err != nil {
			return err
		}
		if err := s.bus.Publish(ctx, event.New(event.PaymentUpdated, p.ID, event.StatusChangedPayload{
			ID: p.ID, From: string(before), To: string(p.Status), ActorID: actor,
		})); err != nil {
			return err
		}

		if before != model.PaymentStatusPaid && p.Status == model.PaymentStatusPaid {
			settled = true
			return s.publishSettled(ctx, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if delta.IsPositive() {
		s.metrics.AmountCollected.Add(delta.InexactFloat64())
	}
	if settled {
		s.logger.Info("Payment settled", "payment_number", p.PaymentNumber)
	}
	return p, nil
}

func (s *Service) publishSettled(ctx context.Context, p *model.Payment) error {
	s.metrics.PaymentsSettled.Inc()
	return s.bus.Publish(ctx, event.New(event.PaymentSettled, p.ID, event.PaymentSettledPayload{
		PaymentID: p.ID,
		PatientID: p.PatientID,
		SettledAt: s.now(),
	}))
}

// Refund returns the collected amount of a payment and removes it from
// financial reporting.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (*model.Payment, error) {
	var p *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.IsRefunded {
			return apperrors.Conflict("payment already refunded", nil)
		}

		now := s.now()
		by := actor.UserID
		p.IsRefunded = true
		p.RefundAmount = p.PaidAmount
		p.RefundDate = &now
		p.RefundReason = reason
		p.RefundedBy = &by
		p.ExcludeFromStats = true
		p.UpdatedAt = now

		if err := s.payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to refund payment: %w", err)
		}
		if err := s.auditor.Log(ctx, by, model.AuditActionRefund, model.AuditEntityPayment, p.ID,
			&audit.LogOptions{Changes: map[string]interface{}{
				"refund_amount": p.RefundAmount,
				"reason":        reason,
			}}); err != nil {
			return err
		}
		return s.bus.Publish(ctx, event.New(event.PaymentRefunded, p.ID, p))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Refunds.Inc()
	s.metrics.AmountRefunded.Add(p.RefundAmount.InexactFloat64())
	s.logger.Info("Payment refunded",
		"payment_number", p.PaymentNumber,
		"amount", p.RefundAmount.String())
	return p, nil
}

// Close stops a payment from collecting anything more once its billable
// event is cancelled, and takes it out of financial reporting. Amounts
// already paid are left as they are.
func (s *Service) Close(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (*model.Payment, error) {
	var p *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.payments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.IsClosed {
			return nil
		}

		p.IsClosed = true
		p.ExcludeFromStats = true
		p.UpdatedAt = s.now()
		if err := s.payments.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to close payment: %w", err)
		}
		return s.auditor.Log(ctx, actor.UserID, model.AuditActionCancel, model.AuditEntityPayment, p.ID,
			&audit.LogOptions{Changes: map[string]interface{}{"reason": reason}})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment closed", "payment_number", p.PaymentNumber)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, error) {
	payments, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// Summary aggregates the payments matching filter that count toward stats
func (s *Service) Summary(ctx context.Context, filter model.PaymentFilter) (*model.PaymentSummary, error) {
	summary, err := s.payments.Summary(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize payments: %w", err)
	}
	return summary, nil
}

// Debtors lists open payments that still carry an active debt
func (s *Service) Debtors(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, error) {
	hasDebt := true
	filter.HasDebt = &hasDebt
	filter.Open = true
	return s.List(ctx, filter)
}

func primaryKind(details model.PaymentDetails) model.DetailKind {
	if len(details) == 0 {
		return model.DetailKindOther
	}
	return details[0].Kind
}
