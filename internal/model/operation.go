package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OperationStatus string

const (
	OperationStatusPendingPayment OperationStatus = "pending_payment"
	OperationStatusScheduled      OperationStatus = "scheduled"
	OperationStatusInProgress     OperationStatus = "in_progress"
	OperationStatusCompleted      OperationStatus = "completed"
	OperationStatusCancelled      OperationStatus = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s OperationStatus) Terminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusCancelled
}

type OperationCategory string

const (
	OperationCategoryMinor     OperationCategory = "minor"
	OperationCategoryMajor     OperationCategory = "major"
	OperationCategoryEmergency OperationCategory = "emergency"
)

type AnesthesiaType string

const (
	AnesthesiaGeneral  AnesthesiaType = "general"
	AnesthesiaLocal    AnesthesiaType = "local"
	AnesthesiaSpinal   AnesthesiaType = "spinal"
	AnesthesiaEpidural AnesthesiaType = "epidural"
	AnesthesiaSedation AnesthesiaType = "sedation"
)

type Operation struct {
	Base
	OperationNumber    string            `json:"operation_number" db:"operation_number"`
	PatientID          uuid.UUID         `json:"patient_id" db:"patient_id"`
	SurgeonID          uuid.UUID         `json:"surgeon_id" db:"surgeon_id"`
	AssistantID        *uuid.UUID        `json:"assistant_id,omitempty" db:"assistant_id"`
	AnesthetistID      *uuid.UUID        `json:"anesthetist_id,omitempty" db:"anesthetist_id"`
	OperationType      string            `json:"operation_type" db:"operation_type"`
	Category           OperationCategory `json:"category" db:"category"`
	AnesthesiaType     AnesthesiaType    `json:"anesthesia_type,omitempty" db:"anesthesia_type"`
	ScheduledDate      time.Time         `json:"scheduled_date" db:"scheduled_date"`
	EstimatedDuration  int               `json:"estimated_duration" db:"estimated_duration"`
	ActualDate         *time.Time        `json:"actual_date,omitempty" db:"actual_date"`
	StartTime          string            `json:"start_time,omitempty" db:"start_time"`
	EndTime            string            `json:"end_time,omitempty" db:"end_time"`
	ActualDuration     int               `json:"actual_duration,omitempty" db:"actual_duration"`
	Cost               decimal.Decimal   `json:"cost" db:"cost"`
	PaymentID          uuid.UUID         `json:"payment_id" db:"payment_id"`
	IsPaid             bool              `json:"is_paid" db:"is_paid"`
	PreOpNotes         string            `json:"pre_op_notes,omitempty" db:"pre_op_notes"`
	OperativeReport    string            `json:"operative_report,omitempty" db:"operative_report"`
	PostOpReport       string            `json:"post_op_report,omitempty" db:"post_op_report"`
	Complications      string            `json:"complications,omitempty" db:"complications"`
	Recommendations    string            `json:"recommendations,omitempty" db:"recommendations"`
	CancellationReason string            `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy        *uuid.UUID        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	Status             OperationStatus   `json:"status" db:"status"`
	CreatedBy          uuid.UUID         `json:"created_by" db:"created_by"`
}

type OperationFilter struct {
	PatientID *uuid.UUID
	SurgeonID *uuid.UUID
	Statuses  []OperationStatus
	From      *time.Time
	To        *time.Time
	Pagination
}

// OperationWithPayment pairs an operation with its billing snapshot
type OperationWithPayment struct {
	*Operation
	Payment *Payment `json:"payment,omitempty"`
}
