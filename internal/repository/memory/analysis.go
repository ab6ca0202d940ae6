package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

type analysisRepository struct {
	s *Store
}

func NewAnalysisRepository(s *Store) repository.AnalysisRepository {
	return &analysisRepository{s: s}
}

func cloneAnalysis(a model.Analysis) model.Analysis {
	a.Items = append(model.AnalysisItems(nil), a.Items...)
	if a.ResultFile != nil {
		f := *a.ResultFile
		a.ResultFile = &f
	}
	return a
}

func (r *analysisRepository) Create(_ context.Context, a *model.Analysis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.analyses[a.ID]; ok {
		return apperrors.Conflict("analysis already exists", nil)
	}
	r.s.analyses[a.ID] = cloneAnalysis(*a)
	return nil
}

func (r *analysisRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Analysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.analyses[id]
	if !ok {
		return nil, apperrors.NotFound("analysis", nil)
	}
	out := cloneAnalysis(a)
	return &out, nil
}

func (r *analysisRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	return r.GetByID(ctx, id)
}

func (r *analysisRepository) Update(_ context.Context, a *model.Analysis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.analyses[a.ID]; !ok {
		return apperrors.NotFound("analysis", nil)
	}
	r.s.analyses[a.ID] = cloneAnalysis(*a)
	return nil
}

func (r *analysisRepository) List(_ context.Context, filter model.AnalysisFilter) ([]*model.Analysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Analysis
	for _, a := range r.s.analyses {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.TechnicianID != nil && (a.TechnicianID == nil || *a.TechnicianID != *filter.TechnicianID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, a.Status) {
			continue
		}
		if filter.ResultFrom != nil && (a.ResultDate == nil || a.ResultDate.Before(*filter.ResultFrom)) {
			continue
		}
		c := cloneAnalysis(a)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Pagination), nil
}
