package app

import (
	"golang.org/x/time/rate"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/config"
	analysishandler "github.com/ImaneBacar/CMC-UA-Backend/internal/handler/analysis"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/health"
	operationhandler "github.com/ImaneBacar/CMC-UA-Backend/internal/handler/operation"
	patienthandler "github.com/ImaneBacar/CMC-UA-Backend/internal/handler/patient"
	paymenthandler "github.com/ImaneBacar/CMC-UA-Backend/internal/handler/payment"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/prometheus"
	visithandler "github.com/ImaneBacar/CMC-UA-Backend/internal/handler/visit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/router"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/auth"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

// NewRouter mounts every domain handler behind JWT authentication
func NewRouter(
	cfg *config.Config,
	repos *Repositories,
	svcs *Services,
	jwtService auth.JWTService,
	exporter *prometheus.Handler,
	m *metrics.Metrics,
	extraChecks map[string]health.Check,
) (*router.Router, error) {
	checks := map[string]health.Check{
		"database": repos.Ping,
	}
	for name, check := range extraChecks {
		checks[name] = check
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	sizeLimit.MaxUploadSize = cfg.Storage.MaxUploadSize

	r, err := router.NewRouter(
		middleware.NewAuthMiddleware(svcs.RBAC, jwtService),
		health.NewHandler(checks),
		exporter,
		m,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RequestTimeout:   cfg.Server.RequestTimeout,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			CORSConfig:       middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins),
			SizeLimit:        sizeLimit,
		},
		paymenthandler.NewHandler(svcs.Billing, middleware.NewIdempotency(cfg.Idempotency.TTL)),
		operationhandler.NewHandler(svcs.Operations),
		analysishandler.NewHandler(svcs.Analyses),
		visithandler.NewHandler(svcs.Visits),
		patienthandler.NewHandler(svcs.Medical, svcs.Operations),
	)
	if err != nil {
		return nil, err
	}
	r.Setup()
	return r, nil
}
