package medical

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
)

type Service struct {
	repo    repository.MedicalRecordRepository
	auditor *audit.Service
}

func NewService(repo repository.MedicalRecordRepository, auditor *audit.Service) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
	}
}

// Summary counts the references held by a record
type Summary struct {
	Visits        int `json:"visits"`
	Analyses      int `json:"analyses"`
	Operations    int `json:"operations"`
	Prescriptions int `json:"prescriptions"`
	Payments      int `json:"payments"`
}

type RecordView struct {
	*model.MedicalRecord
	Summary Summary `json:"summary"`
}

// GetMedicalRecord returns the patient's record and logs the access
func (s *Service) GetMedicalRecord(ctx context.Context, patientID uuid.UUID, actor model.Actor) (*RecordView, error) {
	record, err := s.repo.GetByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if err := s.auditor.Log(ctx, actor.UserID, model.AuditActionRead, model.AuditEntityRecord, record.ID, nil); err != nil {
		return nil, fmt.Errorf("failed to log record access: %w", err)
	}

	return &RecordView{
		MedicalRecord: record,
		Summary: Summary{
			Visits:        len(record.VisitIDs),
			Analyses:      len(record.AnalysisIDs),
			Operations:    len(record.OperationIDs),
			Prescriptions: len(record.PrescriptionIDs),
			Payments:      len(record.PaymentIDs),
		},
	}, nil
}

// LinkPrescription references a prescription issued elsewhere
func (s *Service) LinkPrescription(ctx context.Context, patientID, prescriptionID uuid.UUID) error {
	if err := s.repo.Append(ctx, patientID, model.RecordEntryPrescription, prescriptionID); err != nil {
		return fmt.Errorf("failed to link prescription: %w", err)
	}
	return nil
}
