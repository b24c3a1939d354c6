package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/Pulse-project-300/atu-project-300/internal/adapters/http/handlers"
	httpMiddleware "github.com/Pulse-project-300/atu-project-300/internal/adapters/http/middleware"
	"github.com/Pulse-project-300/atu-project-300/internal/adapters/metrics"
	memorystorage "github.com/Pulse-project-300/atu-project-300/internal/adapters/storage/memory"
	redisstorage "github.com/Pulse-project-300/atu-project-300/internal/adapters/storage/redis"
	"github.com/Pulse-project-300/atu-project-300/internal/config"
	"github.com/Pulse-project-300/atu-project-300/internal/core/ports"
	"github.com/Pulse-project-300/atu-project-300/internal/core/services"
)

type windowStore interface {
	ports.WindowStore
	httpHandlers.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	var limiter ports.RateLimiter
	var health httpHandlers.Pinger

	storage, closeFn, err := initStorage(ctx, cfg.Storage, logger)
	switch {
	case err != nil && cfg.RateLimiter.FailOpen:
		logger.Warn("rate limit store unavailable, running with rate limiting disabled", "error", err)
	case err != nil:
		logger.Error("rate limit store unavailable", "error", err)
		os.Exit(1)
	default:
		defer closeFn()
		health = storage

		svc, err := services.NewRateLimiterService(storage, services.Config{
			Windows:      cfg.RateLimiter.Windows,
			StoreTimeout: cfg.Storage.Redis.Timeout,
			Logger:       logger,
			Metrics:      recorder,
		})
		if err != nil {
			logger.Error("failed to create limiter", "error", err)
			os.Exit(1)
		}
		limiter = svc
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.Recoverer)

	r.Get("/health", httpHandlers.NewHealthHandler(health))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/routine", func(r chi.Router) {
		r.Use(httpMiddleware.NewRateLimiterMiddleware(limiter, httpMiddleware.Options{
			FailOpen: cfg.RateLimiter.FailOpen,
			Logger:   logger,
		}))
		r.Post("/generate", httpHandlers.GenerateRoutine)
		r.Post("/adapt", httpHandlers.AdaptRoutine)
		r.Post("/explain", httpHandlers.ExplainRoutine)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "storage", cfg.Storage.Type)
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func initStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (windowStore, func(), error) {
	switch cfg.Type {
	case "redis":
		storage, err := redisstorage.New(ctx, redisstorage.Config{
			URL:            cfg.Redis.URL,
			MaxConnections: cfg.Redis.MaxConnections,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Error("failed to close redis storage", "error", err)
			}
		}, nil
	case "memory":
		storage := memorystorage.New(memorystorage.Config{Logger: logger})
		storage.StartCleanup(ctx)
		return storage, storage.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
