package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

type medicalRecordRepository struct {
	s *Store
}

func NewMedicalRecordRepository(s *Store) repository.MedicalRecordRepository {
	return &medicalRecordRepository{s: s}
}

func cloneRecord(r model.MedicalRecord) model.MedicalRecord {
	r.VisitIDs = append([]uuid.UUID{}, r.VisitIDs...)
	r.AnalysisIDs = append([]uuid.UUID{}, r.AnalysisIDs...)
	r.OperationIDs = append([]uuid.UUID{}, r.OperationIDs...)
	r.PrescriptionIDs = append([]uuid.UUID{}, r.PrescriptionIDs...)
	r.PaymentIDs = append([]uuid.UUID{}, r.PaymentIDs...)
	return r
}

func (r *medicalRecordRepository) Append(_ context.Context, patientID uuid.UUID, kind model.RecordEntryKind, ref uuid.UUID) error {
	if !knownKind(kind) {
		return fmt.Errorf("unknown medical record entry kind %q", kind)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.records[patientID]
	if !ok {
		rec = model.MedicalRecord{PatientID: patientID}
	}
	rec = cloneRecord(rec)
	rec.Touch(time.Now())
	rec.Add(kind, ref)
	r.s.records[patientID] = rec
	return nil
}

func knownKind(kind model.RecordEntryKind) bool {
	switch kind {
	case model.RecordEntryVisit, model.RecordEntryAnalysis, model.RecordEntryOperation,
		model.RecordEntryPrescription, model.RecordEntryPayment:
		return true
	}
	return false
}

func (r *medicalRecordRepository) GetByPatient(_ context.Context, patientID uuid.UUID) (*model.MedicalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[patientID]
	if !ok {
		return nil, apperrors.NotFound("medical record", nil)
	}
	out := cloneRecord(rec)
	return &out, nil
}

type sequenceRepository struct {
	s *Store
}

func NewSequenceRepository(s *Store) repository.SequenceRepository {
	return &sequenceRepository{s: s}
}

func (r *sequenceRepository) Increment(_ context.Context, key string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[key]++
	return r.s.counters[key], nil
}

type outboxRepository struct {
	s *Store
}

func NewOutboxRepository(s *Store) repository.OutboxRepository {
	return &outboxRepository{s: s}
}

func (r *outboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending
	r.s.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepository) GetPendingEventsWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.OutboxEvent
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusFailed {
			c := e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return apperrors.NotFound("outbox event", nil)
	}
	now := time.Now()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &now
	e.ErrorMessage = nil
	e.UpdatedAt = now
	r.s.outbox[id] = e
	return nil
}

func (r *outboxRepository) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return apperrors.NotFound("outbox event", nil)
	}
	e.RetryCount++
	e.Status = model.OutboxStatusFailed
	if e.RetryCount >= maxRetries {
		e.Status = model.OutboxStatusDead
	}
	e.ErrorMessage = &errMsg
	e.UpdatedAt = time.Now()
	r.s.outbox[id] = e
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}

type auditRepository struct {
	s *Store
}

func NewAuditRepository(s *Store) repository.AuditRepository {
	return &auditRepository{s: s}
}

func (r *auditRepository) Create(_ context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

func (r *auditRepository) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.AuditLog
	for _, l := range r.s.audit {
		if l.EntityType == entityType && l.EntityID == entityID {
			c := l
			out = append(out, &c)
		}
	}
	return out, nil
}
