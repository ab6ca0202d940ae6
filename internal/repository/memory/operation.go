package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

type operationRepository struct {
	s *Store
}

func NewOperationRepository(s *Store) repository.OperationRepository {
	return &operationRepository{s: s}
}

func (r *operationRepository) Create(_ context.Context, op *model.Operation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.operations[op.ID]; ok {
		return apperrors.Conflict("operation already exists", nil)
	}
	r.s.operations[op.ID] = *op
	return nil
}

func (r *operationRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Operation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op, ok := r.s.operations[id]
	if !ok {
		return nil, apperrors.NotFound("operation", nil)
	}
	return &op, nil
}

func (r *operationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	return r.GetByID(ctx, id)
}

func (r *operationRepository) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*model.Operation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, op := range r.s.operations {
		if op.PaymentID == paymentID {
			return &op, nil
		}
	}
	return nil, apperrors.NotFound("operation", nil)
}

func (r *operationRepository) Update(_ context.Context, op *model.Operation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.operations[op.ID]; !ok {
		return apperrors.NotFound("operation", nil)
	}
	r.s.operations[op.ID] = *op
	return nil
}

func (r *operationRepository) List(_ context.Context, filter model.OperationFilter) ([]*model.Operation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Operation
	for _, op := range r.s.operations {
		if filter.PatientID != nil && op.PatientID != *filter.PatientID {
			continue
		}
		if filter.SurgeonID != nil && op.SurgeonID != *filter.SurgeonID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, op.Status) {
			continue
		}
		if !inRange(op.ScheduledDate, filter.From, filter.To) {
			continue
		}
		c := op
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return paginate(out, filter.Pagination), nil
}

func containsStatus[S comparable](list []S, s S) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
