package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apichafoko/RegistroCirugias-sub001/cmd/mainconfig"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/api/router"
	appconfig "github.com/apichafoko/RegistroCirugias-sub001/internal/config"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/conversation"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/directory"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/observability/metrics"
	"github.com/apichafoko/RegistroCirugias-sub001/internal/surgeries"
	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.ForEnv(cfg.Env, cfg.LogLevel)
	logger.Info("starting registro-cirugias API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	convMetrics := metrics.NewConversationMetrics(registry)

	engine, err := buildEngine(ctx, cfg, logger, convMetrics)
	if err != nil {
		logger.Error("failed to build conversation engine", "error", err)
		os.Exit(1)
	}

	// Queue: SQS in production; in-memory with an in-process worker for
	// local development.
	var publisher *conversation.Publisher
	var worker *conversation.Worker
	if cfg.UseMemoryQueue || cfg.EventsQueueURL == "" {
		memQueue := conversation.NewMemoryQueue(256)
		publisher = conversation.NewPublisher(memQueue, logger)
		worker = conversation.NewWorker(engine, memQueue, nil, logger,
			conversation.WithWorkerCount(cfg.WorkerCount))
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sqsQueue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)
		publisher = conversation.NewPublisher(sqsQueue, logger)
	}

	if worker != nil {
		worker.Start(ctx)
	}

	handler := conversation.NewHandler(publisher, engine, logger)
	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: handler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
}

// buildEngine assembles the slot-filling engine with whatever backing
// services the configuration enables.
func buildEngine(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, convMetrics *metrics.ConversationMetrics) (*conversation.Engine, error) {
	sessions := conversation.NewSessionStore(cfg.SessionIdleTTL, logger.Named("sessions"),
		conversation.WithSessionMetrics(convMetrics))
	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	llmClient, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, err
	}
	extractor := conversation.NewLLMExtractor(llmClient, conversation.ExtractorConfig{
		Model:   cfg.GeminiModel,
		Timeout: cfg.ExtractorTimeout,
	}, logger.Named("extractor"))

	opts := []conversation.EngineOption{
		conversation.WithMetrics(convMetrics),
		conversation.WithMaxRetries(cfg.MaxFieldRetries),
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			conversation.WithDirectory(directory.NewPostgresDirectory(db)),
			conversation.WithRecordSaver(surgeries.NewPostgresStore(db)),
		)
	} else {
		logger.Warn("no DATABASE_URL configured, records will not be persisted")
	}

	if redisClient := mainconfig.NewRedisClient(cfg); redisClient != nil {
		opts = append(opts, conversation.WithSnapshotStore(
			conversation.NewRedisSnapshotStore(redisClient, nil, cfg.SnapshotTTL)))
	}

	return conversation.NewEngine(sessions, extractor, logger.Named("engine"), opts...), nil
}
