package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/email"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

// Service tells billing staff about money leaving the till
type Service struct {
	emailSvc   email.Service
	recipients []string
}

func NewService(emailSvc email.Service, recipients []string) *Service {
	return &Service{
		emailSvc:   emailSvc,
		recipients: recipients,
	}
}

func (s *Service) RefundIssued(ctx context.Context, op *model.Operation, p *model.Payment) error {
	if len(s.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Refund %s for operation %s", p.PaymentNumber, op.OperationNumber)

	var b strings.Builder
	fmt.Fprintf(&b, "Operation: %s (%s)\n", op.OperationNumber, op.OperationType)
	fmt.Fprintf(&b, "Payment: %s\n", p.PaymentNumber)
	fmt.Fprintf(&b, "Refund amount: %s\n", p.RefundAmount.StringFixed(2))
	fmt.Fprintf(&b, "Reason: %s\n", p.RefundReason)
	if p.RefundDate != nil {
		fmt.Fprintf(&b, "Date: %s\n", p.RefundDate.Format("2006-01-02 15:04"))
	}

	if err := s.emailSvc.SendCustom(ctx, s.recipients, subject, b.String()); err != nil {
		return fmt.Errorf("failed to send refund notice: %w", err)
	}
	return nil
}
