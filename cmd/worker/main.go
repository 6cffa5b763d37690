package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benvon/finance-advisor/internal/config"
	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/logger"
	"github.com/benvon/finance-advisor/internal/queue"
	"github.com/benvon/finance-advisor/internal/services/ai"
	"github.com/benvon/finance-advisor/internal/services/insights"
	"github.com/benvon/finance-advisor/internal/services/summary"
	"github.com/benvon/finance-advisor/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for model API logging")
	envFile := flag.String("env-file", ".env", "Optional .env file to load before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireQueue(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: "finance-advisor-worker", Debug: debugMode})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("ai_api_key", ai.SanitizeAPIKey(cfg.ModelAPIKey())),
		zap.Duration("refresh_interval", cfg.InsightRefreshInterval),
		zap.Duration("stale_after", cfg.InsightStaleAfter),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	jobQueue, err := queue.Connect(ctx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	provider, err := ai.DefaultRegistry().GetProvider(cfg.AIProvider, ai.ProviderConfig{
		APIKey:   cfg.ModelAPIKey(),
		Model:    cfg.AIModel,
		BaseURL:  cfg.AIBaseURL,
		Project:  cfg.GCPProject,
		Location: cfg.GCPLocation,
		Logger:   zapLogger,
		Debug:    debugMode,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_create_ai_provider", zap.String("provider", cfg.AIProvider), zap.Error(err))
	}

	financeRepo := database.NewFinanceRepository(db)
	manager := insights.NewManager(
		financeRepo,
		database.NewInsightRepository(db),
		summary.NewBuilder(financeRepo),
		provider,
		zapLogger,
	)

	worker := workers.NewInsightWorker(manager, jobQueue, zapLogger)
	scheduler := workers.NewInsightScheduler(
		database.NewUserActivityRepository(db),
		jobQueue,
		cfg.InsightRefreshInterval,
		cfg.InsightStaleAfter,
		zapLogger,
	)
	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, cfg.DLQRetention, zapLogger)

	msgs, errs, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		worker.Run(ctx, msgs, errs)
	}()
	go func() {
		defer wg.Done()
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("insight_scheduler_stopped_with_error", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("worker_shutting_down")
	cancel()
	wg.Wait()
	zapLogger.Info("worker_stopped")
}
