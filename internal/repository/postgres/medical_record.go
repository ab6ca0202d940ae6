package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
)

var recordColumns = map[model.RecordEntryKind]string{
	model.RecordEntryVisit:        "visit_ids",
	model.RecordEntryAnalysis:     "analysis_ids",
	model.RecordEntryOperation:    "operation_ids",
	model.RecordEntryPrescription: "prescription_ids",
	model.RecordEntryPayment:      "payment_ids",
}

type medicalRecordRow struct {
	model.Base
	PatientID       uuid.UUID      `db:"patient_id"`
	VisitIDs        pq.StringArray `db:"visit_ids"`
	AnalysisIDs     pq.StringArray `db:"analysis_ids"`
	OperationIDs    pq.StringArray `db:"operation_ids"`
	PrescriptionIDs pq.StringArray `db:"prescription_ids"`
	PaymentIDs      pq.StringArray `db:"payment_ids"`
}

type medicalRecordRepository struct {
	BaseRepository
}

func NewMedicalRecordRepository(base BaseRepository) repository.MedicalRecordRepository {
	return &medicalRecordRepository{base}
}

func (r *medicalRecordRepository) Append(ctx context.Context, patientID uuid.UUID, kind model.RecordEntryKind, ref uuid.UUID) error {
	col, ok := recordColumns[kind]
	if !ok {
		return fmt.Errorf("unknown medical record entry kind %q", kind)
	}

	query := fmt.Sprintf(`
		INSERT INTO medical_records (id, patient_id, %[1]s, created_at, updated_at)
		VALUES ($1, $2, ARRAY[$3::uuid], $4, $4)
		ON CONFLICT (patient_id) DO UPDATE SET
			%[1]s = CASE
				WHEN $3::uuid = ANY(medical_records.%[1]s) THEN medical_records.%[1]s
				ELSE array_append(medical_records.%[1]s, $3::uuid)
			END,
			updated_at = $4`, col)

	if _, err := r.ext(ctx).ExecContext(ctx, query, uuid.New(), patientID, ref, time.Now()); err != nil {
		return fmt.Errorf("failed to append to medical record: %w", err)
	}
	return nil
}

func (r *medicalRecordRepository) GetByPatient(ctx context.Context, patientID uuid.UUID) (*model.MedicalRecord, error) {
	query := `
		SELECT id, patient_id, visit_ids::text[] AS visit_ids, analysis_ids::text[] AS analysis_ids,
			operation_ids::text[] AS operation_ids, prescription_ids::text[] AS prescription_ids,
			payment_ids::text[] AS payment_ids, created_at, updated_at
		FROM medical_records
		WHERE patient_id = $1`

	var row medicalRecordRow
	if err := r.get(ctx, "medical record", &row, query, patientID); err != nil {
		return nil, err
	}

	record := &model.MedicalRecord{Base: row.Base, PatientID: row.PatientID}
	var err error
	if record.VisitIDs, err = parseIDs(row.VisitIDs); err != nil {
		return nil, err
	}
	if record.AnalysisIDs, err = parseIDs(row.AnalysisIDs); err != nil {
		return nil, err
	}
	if record.OperationIDs, err = parseIDs(row.OperationIDs); err != nil {
		return nil, err
	}
	if record.PrescriptionIDs, err = parseIDs(row.PrescriptionIDs); err != nil {
		return nil, err
	}
	if record.PaymentIDs, err = parseIDs(row.PaymentIDs); err != nil {
		return nil, err
	}
	return record, nil
}

func parseIDs(raw pq.StringArray) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse medical record reference %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
