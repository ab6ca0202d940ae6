package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/app"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/email"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/health"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/prometheus"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/notification"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/storage"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/auth"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/messaging/redis"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			repos, err := app.OpenRepositories(cfg.Database)
			if err != nil {
				return err
			}
			defer repos.Close()

			checks := map[string]health.Check{}
			var client *goredis.Client
			if cfg.Sequence.Backend == "redis" {
				client, err = redis.NewClient(ctx, redis.Config{
					URL:          cfg.Redis.URL,
					MaxRetries:   cfg.Redis.MaxRetries,
					PoolSize:     cfg.Redis.PoolSize,
					MinIdleConns: cfg.Redis.MinIdleConns,
					DialTimeout:  cfg.Redis.DialTimeout,
				})
				if err != nil {
					return err
				}
				defer client.Close()
				checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			}

			numbers, err := repos.SequenceGenerator(cfg.Sequence.Backend, client)
			if err != nil {
				return err
			}
			files, err := storage.NewDiskStore(cfg.Storage.ResultsDir)
			if err != nil {
				return err
			}

			exporter := prometheus.New()
			m := metrics.NewMetrics("cmc", exporter.Registry())

			svcs := app.NewServices(repos, app.ServiceOptions{
				Numbers:     numbers,
				Files:       files,
				MaxFileSize: cfg.Storage.MaxUploadSize,
				Notifier:    notification.NewService(email.NewService(cfg.Notification), cfg.Notification.Recipients),
				Metrics:     m,
				Logger:      log,
			})

			jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
			r, err := app.NewRouter(cfg, repos, svcs, jwtService, exporter, m, checks)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      r.Engine(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				log.Info("Starting server", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				return fmt.Errorf("failed to start server: %w", err)
			case <-ctx.Done():
			}

			log.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			log.Info("Server exited")
			return nil
		},
	}
}
