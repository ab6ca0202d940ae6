package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type DebtStatus string

const (
	DebtStatusNone    DebtStatus = "none"
	DebtStatusActive  DebtStatus = "active"
	DebtStatusSettled DebtStatus = "settled"
)

type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodMobileMoney
}

type DetailKind string

const (
	DetailKindConsultation    DetailKind = "consultation"
	DetailKindAnalysis        DetailKind = "analysis"
	DetailKindHospitalisation DetailKind = "hospitalisation"
	DetailKindMedication      DetailKind = "medication"
	DetailKindOperation       DetailKind = "operation"
	DetailKindOther           DetailKind = "other"
)

func (k DetailKind) Valid() bool {
	switch k {
	case DetailKindConsultation, DetailKindAnalysis, DetailKindHospitalisation,
		DetailKindMedication, DetailKindOperation, DetailKindOther:
		return true
	}
	return false
}

// PaymentDetail is one billable line of a payment
type PaymentDetail struct {
	Kind        DetailKind      `json:"kind"`
	ReferenceID *uuid.UUID      `json:"reference_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type PaymentDetails []PaymentDetail

func (d PaymentDetails) Value() (driver.Value, error) {
	if d == nil {
		d = PaymentDetails{}
	}
	return jsonValue(d)
}

func (d *PaymentDetails) Scan(src interface{}) error {
	return scanJSON(src, d)
}

// Sum returns the total of all line amounts
func (d PaymentDetails) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d {
		total = total.Add(line.Amount)
	}
	return total
}

// Repayment records a refund or supplementary payment event
type Repayment struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Method      PaymentMethod   `json:"method"`
	ValidatedBy uuid.UUID       `json:"validated_by"`
	Note        string          `json:"note,omitempty"`
}

type Repayments []Repayment

func (r Repayments) Value() (driver.Value, error) {
	if r == nil {
		r = Repayments{}
	}
	return jsonValue(r)
}

func (r *Repayments) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// Payment is the billing snapshot of one billable event. Every amount other
// than TotalAmount, DiscountPercentage and PaidAmount is derived.
type Payment struct {
	Base
	PaymentNumber      string          `json:"payment_number" db:"payment_number"`
	PatientID          uuid.UUID       `json:"patient_id" db:"patient_id"`
	VisitID            *uuid.UUID      `json:"visit_id,omitempty" db:"visit_id"`
	Details            PaymentDetails  `json:"details" db:"details"`
	TotalAmount        decimal.Decimal `json:"total_amount" db:"total_amount"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" db:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	HasDiscount        bool            `json:"has_discount" db:"has_discount"`
	FinalAmount        decimal.Decimal `json:"final_amount" db:"final_amount"`
	PaidAmount         decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	RemainingAmount    decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	CreditAmount       decimal.Decimal `json:"credit_amount" db:"credit_amount"`
	HasDebt            bool            `json:"has_debt" db:"has_debt"`
	DebtStatus         DebtStatus      `json:"debt_status" db:"debt_status"`
	Status             PaymentStatus   `json:"status" db:"status"`
	PaymentMethod      PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentDate        *time.Time      `json:"payment_date,omitempty" db:"payment_date"`
	Repayments         Repayments      `json:"repayments" db:"repayments"`
	IsRefunded         bool            `json:"is_refunded" db:"is_refunded"`
	RefundAmount       decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	RefundDate         *time.Time      `json:"refund_date,omitempty" db:"refund_date"`
	RefundReason       string          `json:"refund_reason,omitempty" db:"refund_reason"`
	RefundedBy         *uuid.UUID      `json:"refunded_by,omitempty" db:"refunded_by"`
	ExcludeFromStats   bool            `json:"exclude_from_stats" db:"exclude_from_stats"`
	// IsClosed marks a payment whose billable event was cancelled; it accepts
	// no further updates.
	IsClosed           bool            `json:"is_closed" db:"is_closed"`
	CreatedBy          uuid.UUID       `json:"created_by" db:"created_by"`
	ValidatedBy        *uuid.UUID      `json:"validated_by,omitempty" db:"validated_by"`
}

// PaymentFilter selects payments for listings and reports
type PaymentFilter struct {
	PatientID *uuid.UUID
	Status    PaymentStatus
	HasDebt   *bool
	// Open leaves out closed and refunded payments
	Open      bool
	From      *time.Time
	To        *time.Time
	Pagination
}

// PaymentSummary aggregates payments that count toward financial reporting
type PaymentSummary struct {
	Count          int             `json:"count" db:"count"`
	TotalBilled    decimal.Decimal `json:"total_billed" db:"total_billed"`
	TotalDiscount  decimal.Decimal `json:"total_discount" db:"total_discount"`
	TotalCollected decimal.Decimal `json:"total_collected" db:"total_collected"`
	Outstanding    decimal.Decimal `json:"outstanding" db:"outstanding"`
	TotalCredit    decimal.Decimal `json:"total_credit" db:"total_credit"`
	DebtorCount    int             `json:"debtor_count" db:"debtor_count"`
	RefundedCount  int             `json:"refunded_count" db:"refunded_count"`
	TotalRefunded  decimal.Decimal `json:"total_refunded" db:"total_refunded"`
}
