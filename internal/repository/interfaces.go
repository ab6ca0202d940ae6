package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

// All repository interfaces in one file
type (
	// Transactor runs fn inside one database transaction carried by ctx.
	// Nested calls join the outer transaction.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		// GetForUpdate locks the row until the surrounding transaction ends
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		Update(ctx context.Context, payment *model.Payment) error
		List(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, error)
		Summary(ctx context.Context, filter model.PaymentFilter) (*model.PaymentSummary, error)
	}

	OperationRepository interface {
		Create(ctx context.Context, op *model.Operation) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Operation, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Operation, error)
		GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*model.Operation, error)
		Update(ctx context.Context, op *model.Operation) error
		List(ctx context.Context, filter model.OperationFilter) ([]*model.Operation, error)
	}

	AnalysisRepository interface {
		Create(ctx context.Context, analysis *model.Analysis) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Analysis, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Analysis, error)
		Update(ctx context.Context, analysis *model.Analysis) error
		List(ctx context.Context, filter model.AnalysisFilter) ([]*model.Analysis, error)
	}

	VisitRepository interface {
		Create(ctx context.Context, visit *model.Visit) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Visit, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Visit, error)
		Update(ctx context.Context, visit *model.Visit) error
		List(ctx context.Context, filter model.VisitFilter) ([]*model.Visit, error)
	}

	MedicalRecordRepository interface {
		// Append creates the patient's record if needed and adds ref once
		Append(ctx context.Context, patientID uuid.UUID, kind model.RecordEntryKind, ref uuid.UUID) error
		GetByPatient(ctx context.Context, patientID uuid.UUID) (*model.MedicalRecord, error)
	}

	// SequenceRepository increments and returns a named counter atomically
	SequenceRepository interface {
		Increment(ctx context.Context, key string) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	}
)
