// Package main provides the worker entry point for the probe point service.
// The worker drains the job queue and runs performance tests against the
// audit provider. Multiple worker processes may run side by side.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/adapter"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/config"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/orchestrator"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/queue"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/storage"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.Info("Worker starting...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	testRunRepo := storage.NewTestRunRepository(postgres)
	jobRepo := storage.NewJobRepository(postgres)
	historyRepo := storage.NewMetricsHistoryRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, &cfg.Cache)

	jobQueue := queue.NewQueue(jobRepo, cfg.Queue.MaxAttempts, cfg.Queue.BaseRetryDelay)
	auditor := adapter.NewPageSpeedClient(&cfg.Provider, logger)

	testService := orchestrator.NewOrchestrator(
		testRunRepo,
		jobQueue,
		auditor,
		logger,
		orchestrator.WithCache(cacheService),
		orchestrator.WithHistory(historyRepo),
	)

	w := worker.NewWorker(
		jobQueue,
		testService,
		logger,
		cfg.Queue.PollInterval,
		cfg.Queue.LeaseDuration,
		cfg.Queue.BatchSize,
		cfg.Queue.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	w.Stop()
	logger.Info("Worker exited")
}
