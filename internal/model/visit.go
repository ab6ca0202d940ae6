package model

import (
	"time"

	"github.com/google/uuid"
)

type VisitStatus string

const (
	VisitStatusWaitingConsultation VisitStatus = "waiting_consultation"
	VisitStatusInConsultation      VisitStatus = "in_consultation"
	VisitStatusAwaitingResults     VisitStatus = "awaiting_results"
	VisitStatusAwaitingPayment     VisitStatus = "awaiting_payment"
	VisitStatusFinished            VisitStatus = "finished"
	VisitStatusFinishedWithDebt    VisitStatus = "finished_with_debt"
	VisitStatusCancelled           VisitStatus = "cancelled"
)

func (s VisitStatus) Closed() bool {
	return s == VisitStatusFinished || s == VisitStatusFinishedWithDebt || s == VisitStatusCancelled
}

type Visit struct {
	Base
	VisitNumber string      `db:"visit_number" json:"visit_number"`
	PatientID   uuid.UUID   `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	Reason      string      `db:"reason" json:"reason"`
	Notes       string      `db:"notes" json:"notes,omitempty"`
	PaymentID   uuid.UUID   `db:"payment_id" json:"payment_id"`
	IsPaid      bool        `db:"is_paid" json:"is_paid"`
	StartTime   time.Time   `db:"start_time" json:"start_time"`
	EndTime     *time.Time  `db:"end_time" json:"end_time,omitempty"`
	Status      VisitStatus `db:"status" json:"status"`
	CreatedBy   uuid.UUID   `db:"created_by" json:"created_by"`
}

type VisitFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    VisitStatus
	// From and To bound the start time, To exclusive
	From *time.Time
	To   *time.Time
	// Open leaves out finished and cancelled visits
	Open bool
	Pagination
}

// VisitWithPayment pairs a visit with its consultation payment
type VisitWithPayment struct {
	*Visit
	Payment *Payment `json:"payment,omitempty"`
}
