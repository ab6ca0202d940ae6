package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AnalysisStatus string

const (
	AnalysisStatusPending    AnalysisStatus = "pending"
	AnalysisStatusInProgress AnalysisStatus = "in_progress"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusValidated  AnalysisStatus = "validated"
)

// AcceptsResultFile reports whether a result document may be attached
func (s AnalysisStatus) AcceptsResultFile() bool {
	return s == AnalysisStatusInProgress || s == AnalysisStatusCompleted || s == AnalysisStatusValidated
}

type AnalysisItem struct {
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Value          string          `json:"value,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	ReferenceRange string          `json:"reference_range,omitempty"`
	Interpretation string          `json:"interpretation,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

type AnalysisItems []AnalysisItem

func (i AnalysisItems) Value() (driver.Value, error) {
	if i == nil {
		i = AnalysisItems{}
	}
	return jsonValue(i)
}

func (i *AnalysisItems) Scan(src interface{}) error {
	return scanJSON(src, i)
}

// ResultFile describes the stored result document of an analysis
type ResultFile struct {
	FileName     string    `json:"file_name"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
	UploadedBy   uuid.UUID `json:"uploaded_by"`
}

func (f ResultFile) Value() (driver.Value, error) {
	return jsonValue(f)
}

func (f *ResultFile) Scan(src interface{}) error {
	return scanJSON(src, f)
}

type Analysis struct {
	Base
	AnalysisNumber    string          `json:"analysis_number" db:"analysis_number"`
	PatientID         uuid.UUID       `json:"patient_id" db:"patient_id"`
	DoctorID          uuid.UUID       `json:"doctor_id" db:"doctor_id"`
	VisitID           *uuid.UUID      `json:"visit_id,omitempty" db:"visit_id"`
	Items             AnalysisItems   `json:"items" db:"items"`
	TotalPrice        decimal.Decimal `json:"total_price" db:"total_price"`
	PaymentID         uuid.UUID       `json:"payment_id" db:"payment_id"`
	TechnicianID      *uuid.UUID      `json:"technician_id,omitempty" db:"technician_id"`
	ProcessingDate    *time.Time      `json:"processing_date,omitempty" db:"processing_date"`
	ResultDate        *time.Time      `json:"result_date,omitempty" db:"result_date"`
	ValidationDate    *time.Time      `json:"validation_date,omitempty" db:"validation_date"`
	ValidatedBy       *uuid.UUID      `json:"validated_by,omitempty" db:"validated_by"`
	TechnicianComment string          `json:"technician_comment,omitempty" db:"technician_comment"`
	DoctorComment     string          `json:"doctor_comment,omitempty" db:"doctor_comment"`
	ResultFile        *ResultFile     `json:"result_file,omitempty" db:"result_file"`
	Status            AnalysisStatus  `json:"status" db:"status"`
	CreatedBy         uuid.UUID       `json:"created_by" db:"created_by"`
}

type AnalysisFilter struct {
	PatientID    *uuid.UUID
	DoctorID     *uuid.UUID
	TechnicianID *uuid.UUID
	Statuses     []AnalysisStatus
	// ResultFrom bounds the result date, inclusive
	ResultFrom *time.Time
	Pagination
}

// ResultEntry is one measured value reported for an analysis item
type ResultEntry struct {
	Name           string `json:"name" binding:"required"`
	Value          string `json:"value"`
	Interpretation string `json:"interpretation"`
	Notes          string `json:"notes"`
}
