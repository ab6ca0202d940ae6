package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

type visitRepository struct {
	s *Store
}

func NewVisitRepository(s *Store) repository.VisitRepository {
	return &visitRepository{s: s}
}

func (r *visitRepository) Create(_ context.Context, v *model.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.visits[v.ID]; ok {
		return apperrors.Conflict("visit already exists", nil)
	}
	r.s.visits[v.ID] = *v
	return nil
}

func (r *visitRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok {
		return nil, apperrors.NotFound("visit", nil)
	}
	return &v, nil
}

func (r *visitRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	return r.GetByID(ctx, id)
}

func (r *visitRepository) Update(_ context.Context, v *model.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.visits[v.ID]; !ok {
		return apperrors.NotFound("visit", nil)
	}
	r.s.visits[v.ID] = *v
	return nil
}

func (r *visitRepository) List(_ context.Context, filter model.VisitFilter) ([]*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Visit
	for _, v := range r.s.visits {
		if filter.PatientID != nil && v.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && v.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.Open && v.Status.Closed() {
			continue
		}
		if !inRange(v.StartTime, filter.From, filter.To) {
			continue
		}
		c := v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return paginate(out, filter.Pagination), nil
}
