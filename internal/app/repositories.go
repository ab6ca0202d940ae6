// Package app assembles the storage layer and services shared by the API
// server and the outbox worker.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/config"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/memory"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository/postgres"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
)

// Repositories is one storage backend behind the repository interfaces
type Repositories struct {
	Tx         repository.Transactor
	Payments   repository.PaymentRepository
	Operations repository.OperationRepository
	Analyses   repository.AnalysisRepository
	Visits     repository.VisitRepository
	Records    repository.MedicalRecordRepository
	Sequences  repository.SequenceRepository
	Outbox     repository.OutboxRepository
	Audit      repository.AuditRepository

	// DB is nil for the memory driver
	DB *sqlx.DB
}

// OpenRepositories connects the configured driver
func OpenRepositories(cfg config.DatabaseConfig) (*Repositories, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryRepositories(), nil
	case "postgres":
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		base := postgres.NewBaseRepository(db)
		return &Repositories{
			Tx:         postgres.NewTransactor(base),
			Payments:   postgres.NewPaymentRepository(base),
			Operations: postgres.NewOperationRepository(base),
			Analyses:   postgres.NewAnalysisRepository(base),
			Visits:     postgres.NewVisitRepository(base),
			Records:    postgres.NewMedicalRecordRepository(base),
			Sequences:  postgres.NewSequenceRepository(base),
			Outbox:     postgres.NewOutboxRepository(base),
			Audit:      postgres.NewAuditRepository(base),
			DB:         db,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func NewMemoryRepositories() *Repositories {
	s := memory.NewStore()
	return &Repositories{
		Tx:         s,
		Payments:   memory.NewPaymentRepository(s),
		Operations: memory.NewOperationRepository(s),
		Analyses:   memory.NewAnalysisRepository(s),
		Visits:     memory.NewVisitRepository(s),
		Records:    memory.NewMedicalRecordRepository(s),
		Sequences:  memory.NewSequenceRepository(s),
		Outbox:     memory.NewOutboxRepository(s),
		Audit:      memory.NewAuditRepository(s),
	}
}

// Ping checks the database connection
func (r *Repositories) Ping(ctx context.Context) error {
	if r.DB == nil {
		return nil
	}
	return r.DB.PingContext(ctx)
}

func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// SequenceGenerator picks the counter backend. The redis backend needs a
// client; the others count in the database.
func (r *Repositories) SequenceGenerator(backend string, client *goredis.Client) (sequence.Generator, error) {
	switch backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis sequence backend requires a redis client")
		}
		return sequence.NewGenerator(sequence.NewRedisCounter(client)), nil
	case "postgres", "memory":
		return sequence.FromRepository(r.Sequences), nil
	default:
		return nil, fmt.Errorf("unsupported sequence backend %q", backend)
	}
}
