package app

import (
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/analysis"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	eventsvc "github.com/ImaneBacar/CMC-UA-Backend/internal/service/event"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/medical"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/operation"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/visit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/storage"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type ServiceOptions struct {
	Numbers     sequence.Generator
	Files       storage.FileStore
	MaxFileSize int64
	Notifier    operation.RefundNotifier
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

type Services struct {
	Bus        *event.Bus
	RBAC       *rbac.Service
	Audit      *audit.Service
	Billing    *billing.Service
	Operations *operation.Service
	Analyses   *analysis.Service
	Visits     *visit.Service
	Medical    *medical.Service
}

// NewServices builds the domain services over repos. Every event is written
// to the outbox before in-process subscribers run, and settled payments move
// their pending operation to scheduled.
func NewServices(repos *Repositories, opts ServiceOptions) *Services {
	bus := event.NewBus(eventsvc.NewService(repos.Outbox))
	rbacSvc := rbac.NewService(nil)
	auditor := audit.NewService(repos.Audit)

	billingSvc := billing.NewService(
		repos.Tx,
		repos.Payments,
		repos.Records,
		opts.Numbers,
		bus,
		auditor,
		opts.Metrics,
		opts.Logger,
	)

	opSvc := operation.NewService(operation.Deps{
		Tx:         repos.Tx,
		Operations: repos.Operations,
		Records:    repos.Records,
		Billing:    billingSvc,
		Numbers:    opts.Numbers,
		Bus:        bus,
		RBAC:       rbacSvc,
		Notifier:   opts.Notifier,
		Auditor:    auditor,
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
	})
	bus.Subscribe(event.PaymentSettled, opSvc.HandlePaymentSettled)

	return &Services{
		Bus:        bus,
		RBAC:       rbacSvc,
		Audit:      auditor,
		Billing:    billingSvc,
		Operations: opSvc,
		Analyses: analysis.NewService(analysis.Deps{
			Tx:          repos.Tx,
			Analyses:    repos.Analyses,
			Records:     repos.Records,
			Billing:     billingSvc,
			Numbers:     opts.Numbers,
			Bus:         bus,
			Files:       opts.Files,
			MaxFileSize: opts.MaxFileSize,
			Auditor:     auditor,
			Metrics:     opts.Metrics,
			Logger:      opts.Logger,
		}),
		Visits: visit.NewService(visit.Deps{
			Tx:      repos.Tx,
			Visits:  repos.Visits,
			Records: repos.Records,
			Billing: billingSvc,
			Numbers: opts.Numbers,
			Bus:     bus,
			Auditor: auditor,
			Metrics: opts.Metrics,
			Logger:  opts.Logger,
		}),
		Medical: medical.NewService(repos.Records, auditor),
	}
}
