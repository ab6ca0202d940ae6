package billing

import (
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Snapshot holds every field derived from total, discount percentage and
// paid amount.
type Snapshot struct {
	DiscountAmount  decimal.Decimal
	HasDiscount     bool
	FinalAmount     decimal.Decimal
	RemainingAmount decimal.Decimal
	CreditAmount    decimal.Decimal
	HasDebt         bool
	DebtStatus      model.DebtStatus
	Status          model.PaymentStatus
}

// Compute derives the debt snapshot. The discount is rounded half away from
// zero to whole currency units.
func Compute(total, pct, paid decimal.Decimal) Snapshot {
	discount := total.Mul(pct).Div(hundred).Round(0)
	final := total.Sub(discount)

	remaining := final
	if paid.IsPositive() {
		remaining = final.Sub(paid)
	}

	s := Snapshot{
		DiscountAmount:  discount,
		HasDiscount:     pct.IsPositive(),
		FinalAmount:     final,
		RemainingAmount: remaining,
		CreditAmount:    decimal.Zero,
		HasDebt:         remaining.IsPositive(),
	}

	// overpayment becomes credit
	if remaining.IsNegative() {
		s.RemainingAmount = decimal.Zero
		s.CreditAmount = remaining.Neg()
	}

	s.DebtStatus = model.DebtStatusSettled
	if s.HasDebt {
		s.DebtStatus = model.DebtStatusActive
	}

	switch {
	case !paid.IsPositive():
		s.Status = model.PaymentStatusUnpaid
	case s.HasDebt:
		s.Status = model.PaymentStatusPartial
	default:
		s.Status = model.PaymentStatusPaid
	}
	return s
}

// Recompute overwrites the derived fields of p from its inputs
func Recompute(p *model.Payment) {
	s := Compute(p.TotalAmount, p.DiscountPercentage, p.PaidAmount)
	p.DiscountAmount = s.DiscountAmount
	p.HasDiscount = s.HasDiscount
	p.FinalAmount = s.FinalAmount
	p.RemainingAmount = s.RemainingAmount
	p.CreditAmount = s.CreditAmount
	p.HasDebt = s.HasDebt
	p.DebtStatus = s.DebtStatus
	p.Status = s.Status
}

// ValidateAmounts rejects negative money and discounts outside 0..100
func ValidateAmounts(total, pct, paid decimal.Decimal) error {
	if total.IsNegative() {
		return apperrors.Validation("total amount must not be negative").WithDetail("total_amount", total)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return apperrors.Validation("discount percentage must be between 0 and 100").WithDetail("discount_percentage", pct)
	}
	if paid.IsNegative() {
		return apperrors.Validation("paid amount must not be negative").WithDetail("paid_amount", paid)
	}
	return nil
}

func valueOr(d *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if d == nil {
		return fallback
	}
	return *d
}
