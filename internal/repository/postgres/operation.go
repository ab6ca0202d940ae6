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

const operationColumns = `
	id, operation_number, patient_id, surgeon_id, assistant_id, anesthetist_id,
	operation_type, category, anesthesia_type, scheduled_date, estimated_duration,
	actual_date, start_time, end_time, actual_duration, cost, payment_id, is_paid,
	pre_op_notes, operative_report, post_op_report, complications, recommendations,
	cancellation_reason, cancelled_by, cancelled_at, status, created_by,
	created_at, updated_at`

type operationRepository struct {
	BaseRepository
}

func NewOperationRepository(base BaseRepository) repository.OperationRepository {
	return &operationRepository{base}
}

func (r *operationRepository) Create(ctx context.Context, op *model.Operation) error {
	query := `
		INSERT INTO operations (` + operationColumns + `)
		VALUES (
			:id, :operation_number, :patient_id, :surgeon_id, :assistant_id, :anesthetist_id,
			:operation_type, :category, :anesthesia_type, :scheduled_date, :estimated_duration,
			:actual_date, :start_time, :end_time, :actual_duration, :cost, :payment_id, :is_paid,
			:pre_op_notes, :operative_report, :post_op_report, :complications, :recommendations,
			:cancellation_reason, :cancelled_by, :cancelled_at, :status, :created_by,
			:created_at, :updated_at
		)`
	return r.namedExec(ctx, "operation", query, op)
}

func (r *operationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	var op model.Operation
	if err := r.get(ctx, "operation", &op, `SELECT `+operationColumns+` FROM operations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	var op model.Operation
	if err := r.get(ctx, "operation", &op, `SELECT `+operationColumns+` FROM operations WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Operation, error) {
	var op model.Operation
	if err := r.get(ctx, "operation", &op, `SELECT `+operationColumns+` FROM operations WHERE payment_id = $1 FOR UPDATE`, paymentID); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) Update(ctx context.Context, op *model.Operation) error {
	query := `
		UPDATE operations SET
			assistant_id = :assistant_id,
			anesthetist_id = :anesthetist_id,
			scheduled_date = :scheduled_date,
			actual_date = :actual_date,
			start_time = :start_time,
			end_time = :end_time,
			actual_duration = :actual_duration,
			is_paid = :is_paid,
			pre_op_notes = :pre_op_notes,
			operative_report = :operative_report,
			post_op_report = :post_op_report,
			complications = :complications,
			recommendations = :recommendations,
			cancellation_reason = :cancellation_reason,
			cancelled_by = :cancelled_by,
			cancelled_at = :cancelled_at,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id`
	return r.namedExec(ctx, "operation", query, op)
}

func (r *operationRepository) List(ctx context.Context, filter model.OperationFilter) ([]*model.Operation, error) {
	w := &where{}
	if filter.PatientID != nil {
		w.add("patient_id = $%d", *filter.PatientID)
	}
	if filter.SurgeonID != nil {
		w.add("surgeon_id = $%d", *filter.SurgeonID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY($%d)", pq.Array(statuses))
	}
	if filter.From != nil {
		w.add("scheduled_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("scheduled_date < $%d", *filter.To)
	}

	query := `SELECT ` + operationColumns + ` FROM operations` + w.sql() + ` ORDER BY scheduled_date ASC`
	query += w.page(filter.Normalize())

	var ops []*model.Operation
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &ops, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}
