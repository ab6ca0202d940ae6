// Package memory keeps every repository in process memory. It backs the
// "memory" database driver and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

type txKey struct{}

// Store holds all tables behind one lock
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	payments   map[uuid.UUID]model.Payment
	operations map[uuid.UUID]model.Operation
	analyses   map[uuid.UUID]model.Analysis
	visits     map[uuid.UUID]model.Visit
	records    map[uuid.UUID]model.MedicalRecord
	counters   map[string]int64
	outbox     map[uuid.UUID]model.OutboxEvent
	audit      []model.AuditLog
}

func NewStore() *Store {
	return &Store{
		payments:   make(map[uuid.UUID]model.Payment),
		operations: make(map[uuid.UUID]model.Operation),
		analyses:   make(map[uuid.UUID]model.Analysis),
		visits:     make(map[uuid.UUID]model.Visit),
		records:    make(map[uuid.UUID]model.MedicalRecord),
		counters:   make(map[string]int64),
		outbox:     make(map[uuid.UUID]model.OutboxEvent),
	}
}

type snapshot struct {
	payments   map[uuid.UUID]model.Payment
	operations map[uuid.UUID]model.Operation
	analyses   map[uuid.UUID]model.Analysis
	visits     map[uuid.UUID]model.Visit
	records    map[uuid.UUID]model.MedicalRecord
	counters   map[string]int64
	outbox     map[uuid.UUID]model.OutboxEvent
	audit      []model.AuditLog
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		payments:   cloneMap(s.payments),
		operations: cloneMap(s.operations),
		analyses:   cloneMap(s.analyses),
		visits:     cloneMap(s.visits),
		records:    cloneMap(s.records),
		counters:   cloneMap(s.counters),
		outbox:     cloneMap(s.outbox),
		audit:      append([]model.AuditLog(nil), s.audit...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = snap.payments
	s.operations = snap.operations
	s.analyses = snap.analyses
	s.visits = snap.visits
	s.records = snap.records
	s.counters = snap.counters
	s.outbox = snap.outbox
	s.audit = snap.audit
}

// WithinTx serializes transactions and rolls every table back when fn fails
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

func paginate[T any](items []T, p model.Pagination) []T {
	limit, offset := p.Normalize()
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
