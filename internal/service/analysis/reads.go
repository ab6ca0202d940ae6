package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

// labQueue is what a lab technician may browse
var labQueue = []model.AnalysisStatus{model.AnalysisStatusPending, model.AnalysisStatusInProgress}

type LabDashboard struct {
	Pending       []*model.Analysis `json:"pending"`
	MyInProgress  []*model.Analysis `json:"my_in_progress"`
	FinishedToday []*model.Analysis `json:"finished_today"`
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Analysis, error) {
	return s.Analyses.GetByID(ctx, id)
}

// List applies filter. Lab technicians only ever see the work queue.
func (s *Service) List(ctx context.Context, filter model.AnalysisFilter, actor model.Actor) ([]*model.Analysis, error) {
	if actor.HasRole(model.RoleLabTechnician) && !actor.HasRole(model.RoleAdmin) {
		filter.Statuses = restrict(filter.Statuses, labQueue)
		if len(filter.Statuses) == 0 {
			return []*model.Analysis{}, nil
		}
	}
	list, err := s.Analyses.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return list, nil
}

func (s *Service) LabDashboard(ctx context.Context, actor model.Actor) (*LabDashboard, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tech := actor.UserID

	pending, err := s.Analyses.List(ctx, model.AnalysisFilter{Statuses: []model.AnalysisStatus{model.AnalysisStatusPending}})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending analyses: %w", err)
	}
	mine, err := s.Analyses.List(ctx, model.AnalysisFilter{
		TechnicianID: &tech,
		Statuses:     []model.AnalysisStatus{model.AnalysisStatusInProgress},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses in progress: %w", err)
	}
	finished, err := s.Analyses.List(ctx, model.AnalysisFilter{
		Statuses:   []model.AnalysisStatus{model.AnalysisStatusCompleted, model.AnalysisStatusValidated},
		ResultFrom: &today,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list finished analyses: %w", err)
	}
	return &LabDashboard{Pending: pending, MyInProgress: mine, FinishedToday: finished}, nil
}

// restrict intersects requested with allowed; an empty request means allowed
func restrict(requested, allowed []model.AnalysisStatus) []model.AnalysisStatus {
	if len(requested) == 0 {
		return allowed
	}
	out := make([]model.AnalysisStatus, 0, len(requested))
	for _, r := range requested {
		for _, a := range allowed {
			if r == a {
				out = append(out, r)
			}
		}
	}
	return out
}
