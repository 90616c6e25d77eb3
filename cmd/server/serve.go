package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"minutes-orchestrator/internal/api"
	"minutes-orchestrator/internal/api/handler"
	"minutes-orchestrator/internal/config"
	"minutes-orchestrator/internal/coordinator"
	"minutes-orchestrator/internal/core/memory"
	"minutes-orchestrator/internal/core/ports"
	"minutes-orchestrator/internal/core/postgres/repository"
	"minutes-orchestrator/internal/infrastructure/events"
	"minutes-orchestrator/internal/infrastructure/queue"
	"minutes-orchestrator/internal/infrastructure/redis"
	"minutes-orchestrator/internal/logging"
	"minutes-orchestrator/internal/mcp"
	"minutes-orchestrator/internal/metrics"
	"minutes-orchestrator/internal/service"
	"minutes-orchestrator/internal/stepclient"
	"minutes-orchestrator/internal/worker"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the workflow consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting meeting minutes orchestrator",
		"store", cfg.Store.Driver,
		"events", cfg.Events.Driver,
		"max_retries", cfg.Engine.MaxRetries,
		"retry_backoff", cfg.Engine.RetryBackoff,
		"queue_size", cfg.Engine.QueueSize,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	memBus := events.NewMemoryBus(cfg.Events.Buffer)
	bus, closeBus, err := openEventBus(ctx, cfg, memBus, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	m := metrics.New()
	q := queue.NewChannelQueue(cfg.Engine.QueueSize)
	client := stepclient.NewClient(endpoints(cfg))

	exec := worker.NewExecutor(store, bus, m, logger.With("component", "executor"), worker.RetryPolicy{
		MaxRetries:           cfg.Engine.MaxRetries,
		Backoff:              cfg.Engine.RetryBackoff,
		FailFastClientErrors: cfg.Engine.FailFastClientErrors,
	})
	consumer := worker.NewWorker(q, store, bus, worker.NewPipeline(client, store, exec), m, logger.With("component", "worker"))
	coord := coordinator.NewCoordinator(store, q, bus, consumer, m, logger.With("component", "coordinator"))
	svc := service.NewWorkflowService(coord, client, memBus, cfg.Collaborators.HealthTimeout)

	mcpServer := mcp.NewServer(svc)
	router := api.NewRouter(handler.NewWorkflowHandler(svc, logger), m.Handler(), mcpServer.Handler(), logger)

	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	coord.Start(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Address)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			coord.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	stop()
	coord.Wait()
	logger.Info("Server stopped")
	return nil
}

func endpoints(cfg *config.Config) stepclient.Endpoints {
	return stepclient.Endpoints{
		Transcription:  cfg.Collaborators.TranscriptionURL,
		MeetingMinutes: cfg.Collaborators.MinutesURL,
		FileManagement: cfg.Collaborators.FilesURL,
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (ports.WorkflowStore, func(), error) {
	if cfg.Store.Driver != "postgres" {
		return memory.NewWorkflowStore(), func() {}, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.Store.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("Database connected")

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repository.NewWorkflowRepository(db), closeFn, nil
}

// openEventBus always keeps the in-memory history for GET /events and adds
// Redis pub/sub when configured.
func openEventBus(ctx context.Context, cfg *config.Config, memBus *events.MemoryBus, logger *logging.Logger) (ports.EventBus, func(), error) {
	if cfg.Events.Driver != "redis" {
		return memBus, func() {}, nil
	}

	client, err := redis.NewRedisClient(ctx, cfg.Events.RedisAddress)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Redis connected", "address", cfg.Events.RedisAddress, "channel", cfg.Events.Channel)

	bus := events.Fanout(memBus, redis.NewRedisEventBus(client, cfg.Events.Channel))
	return bus, func() { _ = client.Close() }, nil
}
