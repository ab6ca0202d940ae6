package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
)

const paymentColumns = `
	id, payment_number, patient_id, visit_id, details, total_amount,
	discount_percentage, discount_amount, has_discount, final_amount,
	paid_amount, remaining_amount, credit_amount, has_debt, debt_status,
	status, payment_method, payment_date, repayments, is_refunded,
	refund_amount, refund_date, refund_reason, refunded_by,
	exclude_from_stats, is_closed, created_by, validated_by, created_at, updated_at`

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (
			:id, :payment_number, :patient_id, :visit_id, :details, :total_amount,
			:discount_percentage, :discount_amount, :has_discount, :final_amount,
			:paid_amount, :remaining_amount, :credit_amount, :has_debt, :debt_status,
			:status, :payment_method, :payment_date, :repayments, :is_refunded,
			:refund_amount, :refund_date, :refund_reason, :refunded_by,
			:exclude_from_stats, :is_closed, :created_by, :validated_by, :created_at, :updated_at
		)`
	return r.namedExec(ctx, "payment", query, p)
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := r.get(ctx, "payment", &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := r.get(ctx, "payment", &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	query := `
		UPDATE payments SET
			details = :details,
			total_amount = :total_amount,
			discount_percentage = :discount_percentage,
			discount_amount = :discount_amount,
			has_discount = :has_discount,
			final_amount = :final_amount,
			paid_amount = :paid_amount,
			remaining_amount = :remaining_amount,
			credit_amount = :credit_amount,
			has_debt = :has_debt,
			debt_status = :debt_status,
			status = :status,
			payment_method = :payment_method,
			payment_date = :payment_date,
			repayments = :repayments,
			is_refunded = :is_refunded,
			refund_amount = :refund_amount,
			refund_date = :refund_date,
			refund_reason = :refund_reason,
			refunded_by = :refunded_by,
			exclude_from_stats = :exclude_from_stats,
			is_closed = :is_closed,
			validated_by = :validated_by,
			updated_at = :updated_at
		WHERE id = :id`
	return r.namedExec(ctx, "payment", query, p)
}

func paymentWhere(filter model.PaymentFilter) *where {
	w := &where{}
	if filter.PatientID != nil {
		w.add("patient_id = $%d", *filter.PatientID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.HasDebt != nil {
		w.add("has_debt = $%d", *filter.HasDebt)
	}
	if filter.Open {
		w.raw("NOT is_closed AND NOT is_refunded")
	}
	if filter.From != nil {
		w.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("created_at < $%d", *filter.To)
	}
	return w
}

func (r *paymentRepository) List(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, error) {
	w := paymentWhere(filter)
	query := `SELECT ` + paymentColumns + ` FROM payments` + w.sql() + ` ORDER BY created_at DESC`
	query += w.page(filter.Normalize())

	var payments []*model.Payment
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &payments, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) Summary(ctx context.Context, filter model.PaymentFilter) (*model.PaymentSummary, error) {
	w := paymentWhere(filter)
	query := `
		SELECT
			COUNT(*) FILTER (WHERE NOT exclude_from_stats) AS count,
			COALESCE(SUM(total_amount) FILTER (WHERE NOT exclude_from_stats), 0) AS total_billed,
			COALESCE(SUM(discount_amount) FILTER (WHERE NOT exclude_from_stats), 0) AS total_discount,
			COALESCE(SUM(paid_amount) FILTER (WHERE NOT exclude_from_stats), 0) AS total_collected,
			COALESCE(SUM(remaining_amount) FILTER (WHERE NOT exclude_from_stats), 0) AS outstanding,
			COALESCE(SUM(credit_amount) FILTER (WHERE NOT exclude_from_stats), 0) AS total_credit,
			COUNT(*) FILTER (WHERE has_debt AND NOT exclude_from_stats) AS debtor_count,
			COUNT(*) FILTER (WHERE is_refunded) AS refunded_count,
			COALESCE(SUM(refund_amount) FILTER (WHERE is_refunded), 0) AS total_refunded
		FROM payments` + w.sql()

	var s model.PaymentSummary
	if err := sqlx.GetContext(ctx, r.ext(ctx), &s, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to summarize payments: %w", err)
	}
	return &s, nil
}
