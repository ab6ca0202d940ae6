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

const visitColumns = `
	id, visit_number, patient_id, doctor_id, reason, notes, payment_id, is_paid,
	start_time, end_time, status, created_by, created_at, updated_at`

type visitRepository struct {
	BaseRepository
}

func NewVisitRepository(base BaseRepository) repository.VisitRepository {
	return &visitRepository{base}
}

func (r *visitRepository) Create(ctx context.Context, v *model.Visit) error {
	query := `
		INSERT INTO visits (` + visitColumns + `)
		VALUES (
			:id, :visit_number, :patient_id, :doctor_id, :reason, :notes, :payment_id, :is_paid,
			:start_time, :end_time, :status, :created_by, :created_at, :updated_at
		)`
	return r.namedExec(ctx, "visit", query, v)
}

func (r *visitRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	var v model.Visit
	if err := r.get(ctx, "visit", &v, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	var v model.Visit
	if err := r.get(ctx, "visit", &v, `SELECT `+visitColumns+` FROM visits WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepository) Update(ctx context.Context, v *model.Visit) error {
	query := `
		UPDATE visits SET
			reason = :reason,
			notes = :notes,
			is_paid = :is_paid,
			end_time = :end_time,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id`
	return r.namedExec(ctx, "visit", query, v)
}

func (r *visitRepository) List(ctx context.Context, filter model.VisitFilter) ([]*model.Visit, error) {
	w := &where{}
	if filter.PatientID != nil {
		w.add("patient_id = $%d", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		w.add("doctor_id = $%d", *filter.DoctorID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.Open {
		w.add("status <> ALL($%d)", pq.Array([]string{
			string(model.VisitStatusFinished),
			string(model.VisitStatusFinishedWithDebt),
			string(model.VisitStatusCancelled),
		}))
	}
	if filter.From != nil {
		w.add("start_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("start_time < $%d", *filter.To)
	}

	query := `SELECT ` + visitColumns + ` FROM visits` + w.sql() + ` ORDER BY start_time DESC`
	query += w.page(filter.Normalize())

	var visits []*model.Visit
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &visits, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}
