package notification

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) SendCustom(ctx context.Context, to []string, subject string, content string) error {
	return m.Called(ctx, to, subject, content).Error(0)
}

func TestRefundIssuedSendsToRecipients(t *testing.T) {
	mailer := &mockEmail{}
	svc := NewService(mailer, []string{"billing@example.org"})

	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	op := &model.Operation{OperationNumber: "OP-2024-004", OperationType: "appendectomy"}
	p := &model.Payment{
		PaymentNumber: "PAY-2024-010",
		RefundAmount:  decimal.NewFromInt(1500),
		RefundReason:  "Operation cancelled: patient request",
		RefundDate:    &now,
	}

	mailer.On("SendCustom", mock.Anything, []string{"billing@example.org"},
		"Refund PAY-2024-010 for operation OP-2024-004",
		mock.MatchedBy(func(body string) bool {
			return assert.Contains(t, body, "1500.00") && assert.Contains(t, body, "patient request")
		}),
	).Return(nil).Once()

	require.NoError(t, svc.RefundIssued(context.Background(), op, p))
	mailer.AssertExpectations(t)
}

func TestRefundIssuedWithoutRecipients(t *testing.T) {
	mailer := &mockEmail{}
	svc := NewService(mailer, nil)

	require.NoError(t, svc.RefundIssued(context.Background(), &model.Operation{}, &model.Payment{}))
	mailer.AssertNotCalled(t, "SendCustom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
