package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
)

const analysisColumns = `
	id, analysis_number, patient_id, doctor_id, visit_id, items, total_price,
	payment_id, technician_id, processing_date, result_date, validation_date,
	validated_by, technician_comment, doctor_comment, result_file, status,
	created_by, created_at, updated_at`

type analysisRepository struct {
	BaseRepository
}

func NewAnalysisRepository(base BaseRepository) repository.AnalysisRepository {
	return &analysisRepository{base}
}

func (r *analysisRepository) Create(ctx context.Context, a *model.Analysis) error {
	query := `
		INSERT INTO analyses (` + analysisColumns + `)
		VALUES (
			:id, :analysis_number, :patient_id, :doctor_id, :visit_id, :items, :total_price,
			:payment_id, :technician_id, :processing_date, :result_date, :validation_date,
			:validated_by, :technician_comment, :doctor_comment, :result_file, :status,
			:created_by, :created_at, :updated_at
		)`
	return r.namedExec(ctx, "analysis", query, a)
}

func (r *analysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	var a model.Analysis
	if err := r.get(ctx, "analysis", &a, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *analysisRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	var a model.Analysis
	if err := r.get(ctx, "analysis", &a, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *analysisRepository) Update(ctx context.Context, a *model.Analysis) error {
	query := `
		UPDATE analyses SET
			items = :items,
			technician_id = :technician_id,
			processing_date = :processing_date,
			result_date = :result_date,
			validation_date = :validation_date,
			validated_by = :validated_by,
			technician_comment = :technician_comment,
			doctor_comment = :doctor_comment,
			result_file = :result_file,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id`
	return r.namedExec(ctx, "analysis", query, a)
}

func (r *analysisRepository) List(ctx context.Context, filter model.AnalysisFilter) ([]*model.Analysis, error) {
	w := &where{}
	if filter.PatientID != nil {
		w.add("patient_id = $%d", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		w.add("doctor_id = $%d", *filter.DoctorID)
	}
	if filter.TechnicianID != nil {
		w.add("technician_id = $%d", *filter.TechnicianID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY($%d)", pq.Array(statuses))
	}
	if filter.ResultFrom != nil {
		w.add("result_date >= $%d", *filter.ResultFrom)
	}

	query := `SELECT ` + analysisColumns + ` FROM analyses` + w.sql() + ` ORDER BY created_at DESC`
	query += w.page(filter.Normalize())

	var analyses []*model.Analysis
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &analyses, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}
