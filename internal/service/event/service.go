package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
)

// Service writes domain events to the outbox. It implements event.Recorder
// and runs inside the publishing transaction.
type Service struct {
	outboxRepo repository.OutboxRepository
}

func NewService(outboxRepo repository.OutboxRepository) *Service {
	return &Service{outboxRepo: outboxRepo}
}

func (s *Service) Record(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	outboxEvent := &model.OutboxEvent{
		ID:          uuid.New(),
		EventType:   string(e.Type),
		AggregateID: e.AggregateID,
		Payload:     payload,
	}
	if err := s.outboxRepo.Create(ctx, outboxEvent); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
