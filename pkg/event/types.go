package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	PaymentCreated  Type = "payment.created"
	PaymentUpdated  Type = "payment.updated"
	PaymentSettled  Type = "payment.settled"
	PaymentRefunded Type = "payment.refunded"

	OperationScheduled Type = "operation.scheduled"
	OperationUnlocked  Type = "operation.unlocked"
	OperationStarted   Type = "operation.started"
	OperationCompleted Type = "operation.completed"
	OperationCancelled Type = "operation.cancelled"

	AnalysisCreated   Type = "analysis.created"
	AnalysisStarted   Type = "analysis.started"
	AnalysisCompleted Type = "analysis.completed"
	AnalysisValidated Type = "analysis.validated"

	VisitCreated  Type = "visit.created"
	VisitUpdated  Type = "visit.updated"
	VisitFinished Type = "visit.finished"
)

// Event is a domain fact raised inside a business transaction
type Event struct {
	Type        Type        `json:"type"`
	AggregateID uuid.UUID   `json:"aggregate_id"`
	Payload     interface{} `json:"payload"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func New(t Type, aggregateID uuid.UUID, payload interface{}) Event {
	return Event{
		Type:        t,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

// PaymentSettledPayload is raised once a payment reaches paid status
type PaymentSettledPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	PatientID uuid.UUID `json:"patient_id"`
	SettledAt time.Time `json:"settled_at"`
}

// StatusChangedPayload is the generic payload of a state transition
type StatusChangedPayload struct {
	ID      uuid.UUID `json:"id"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	ActorID uuid.UUID `json:"actor_id,omitempty"`
}
