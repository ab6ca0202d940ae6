package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/app"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/config"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/health"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/prometheus"
	internalworker "github.com/ImaneBacar/CMC-UA-Backend/internal/worker"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/messaging/redis"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/worker"
)

var (
	configPath string
	listenAddr string
)

func main() {
	root := &cobra.Command{
		Use:           "cmc-worker",
		Short:         "Relay outbox events to Redis and prune delivered ones",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.Flags().StringVar(&listenAddr, "listen", ":8081", "address of the health and metrics server")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("worker failed")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.Setup(cfg.Log.Level, cfg.Log.Pretty).WithFields(map[string]interface{}{"component": "worker"})

	repos, err := app.OpenRepositories(cfg.Database)
	if err != nil {
		return err
	}
	defer repos.Close()

	redisCfg := redis.Config{
		URL:           cfg.Redis.URL,
		MaxRetries:    cfg.Redis.MaxRetries,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ChannelPrefix: "cmc:events:",
	}
	client, err := redis.NewClient(ctx, redisCfg)
	if err != nil {
		return err
	}
	broker := redis.NewRedisBroker(client, redisCfg, lg.Zerolog())
	defer broker.Close()

	exporter := prometheus.New()
	m := metrics.NewMetrics("cmc", exporter.Registry())

	processor, err := worker.NewOutboxProcessor(repos.Tx, repos.Outbox, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		MaxRetries:    cfg.Outbox.MaxRetries,
	}, lg, m)
	if err != nil {
		return fmt.Errorf("invalid outbox config: %w", err)
	}

	scheduler := cron.New()
	cleanup := internalworker.NewOutboxCleanupWorker(repos.Outbox, cfg.Outbox.RetentionDays, lg, m)
	if _, err := cleanup.Schedule(ctx, scheduler, cfg.Outbox.CleanupSchedule); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	health.NewHandler(map[string]health.Check{
		"database": repos.Ping,
		"redis":    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}).RegisterRoutes(engine)
	engine.GET("/metrics", exporter.Handler())

	srv := &http.Server{Addr: listenAddr, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error(err, "Health server failed")
			stop()
		}
	}()

	lg.Info("Worker started", "listen", listenAddr, "schedule", cfg.Outbox.CleanupSchedule)
	processor.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error(err, "Health server shutdown failed")
	}
	lg.Info("Worker stopped")
	return nil
}
