package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apichafoko/RegistroCirugias-sub001/cmd/mainconfig"
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
	logger.Info("starting registro-cirugias worker", "env", cfg.Env)

	if cfg.EventsQueueURL == "" {
		logger.Error("EVENTS_QUEUE_URL is required for the standalone worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)

	convMetrics := metrics.NewConversationMetrics(prometheus.NewRegistry())

	sessions := conversation.NewSessionStore(cfg.SessionIdleTTL, logger.Named("sessions"),
		conversation.WithSessionMetrics(convMetrics))
	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	llmClient, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Error("failed to create LLM client", "error", err)
		os.Exit(1)
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
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		opts = append(opts,
			conversation.WithDirectory(directory.NewPostgresDirectory(db)),
			conversation.WithRecordSaver(surgeries.NewPostgresStore(db)),
		)
	}
	if redisClient := mainconfig.NewRedisClient(cfg); redisClient != nil {
		opts = append(opts, conversation.WithSnapshotStore(
			conversation.NewRedisSnapshotStore(redisClient, nil, cfg.SnapshotTTL)))
	}

	engine := conversation.NewEngine(sessions, extractor, logger.Named("engine"), opts...)

	worker := conversation.NewWorker(engine, queue, nil, logger,
		conversation.WithWorkerCount(cfg.WorkerCount))
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("worker stopped")
	case <-doneCtx.Done():
		logger.Error("worker shutdown timed out", "error", doneCtx.Err())
	}
}
