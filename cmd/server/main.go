// Package main provides the API server entry point for the probe point service.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MuBBaSher-YaSiN/probe-point/internal/adapter"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/api"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/config"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/logging"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/orchestrator"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/queue"
	"github.com/MuBBaSher-YaSiN/probe-point/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

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

	// Initialize repositories
	testRunRepo := storage.NewTestRunRepository(postgres)
	jobRepo := storage.NewJobRepository(postgres)
	apiKeyRepo := storage.NewAPIKeyRepository(postgres)
	historyRepo := storage.NewMetricsHistoryRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, &cfg.Cache)

	// Initialize the job queue and orchestrator
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

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		FreeTierRPS:     cfg.RateLimit.FreeTier,
		PremiumTierRPS:  cfg.RateLimit.PremiumTier,
	}

	server := api.NewServer(serverConfig, testService, historyRepo, apiKeyRepo, cacheService, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
