package model

import (
	"github.com/google/uuid"
)

type RecordEntryKind string

const (
	RecordEntryVisit        RecordEntryKind = "visit"
	RecordEntryAnalysis     RecordEntryKind = "analysis"
	RecordEntryOperation    RecordEntryKind = "operation"
	RecordEntryPrescription RecordEntryKind = "prescription"
	RecordEntryPayment      RecordEntryKind = "payment"
)

// MedicalRecord aggregates a patient's clinical history by reference
type MedicalRecord struct {
	Base
	PatientID       uuid.UUID   `db:"patient_id" json:"patient_id"`
	VisitIDs        []uuid.UUID `db:"-" json:"visit_ids"`
	AnalysisIDs     []uuid.UUID `db:"-" json:"analysis_ids"`
	OperationIDs    []uuid.UUID `db:"-" json:"operation_ids"`
	PrescriptionIDs []uuid.UUID `db:"-" json:"prescription_ids"`
	PaymentIDs      []uuid.UUID `db:"-" json:"payment_ids"`
}

// Add appends ref to the list for kind unless it is already present
func (r *MedicalRecord) Add(kind RecordEntryKind, ref uuid.UUID) {
	list := r.list(kind)
	if list == nil {
		return
	}
	for _, id := range *list {
		if id == ref {
			return
		}
	}
	*list = append(*list, ref)
}

func (r *MedicalRecord) list(kind RecordEntryKind) *[]uuid.UUID {
	switch kind {
	case RecordEntryVisit:
		return &r.VisitIDs
	case RecordEntryAnalysis:
		return &r.AnalysisIDs
	case RecordEntryOperation:
		return &r.OperationIDs
	case RecordEntryPrescription:
		return &r.PrescriptionIDs
	case RecordEntryPayment:
		return &r.PaymentIDs
	}
	return nil
}

// OperationHistory groups a patient's operations by status
type OperationHistory struct {
	PatientID uuid.UUID                        `json:"patient_id"`
	Total     int                              `json:"total"`
	ByStatus  map[OperationStatus][]*Operation `json:"by_status"`
}
