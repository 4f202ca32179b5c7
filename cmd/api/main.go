package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iago/socialdesk-back/internal/ai"
	"github.com/iago/socialdesk-back/internal/analysis"
	"github.com/iago/socialdesk-back/internal/batch"
	"github.com/iago/socialdesk-back/internal/cache"
	"github.com/iago/socialdesk-back/internal/config"
	contextbuilder "github.com/iago/socialdesk-back/internal/context"
	httpserver "github.com/iago/socialdesk-back/internal/http"
	"github.com/iago/socialdesk-back/internal/http/handlers"
	"github.com/iago/socialdesk-back/internal/queue"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/repository"
	"github.com/iago/socialdesk-back/internal/schedule"
	"github.com/iago/socialdesk-back/internal/service"
	"github.com/iago/socialdesk-back/internal/storage"
	"github.com/iago/socialdesk-back/internal/worker"
)

type repositories struct {
	messages  repository.MessageRepository
	documents repository.DocumentRepository
	reports   repository.ReportStore
	schedules repository.ScheduleRepository
	runs      repository.RunRepository
}

func main() {
	logger := log.New(os.Stdout, "[socialdesk] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Fatalf("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	resultCache, cacheCloser := setupResultCache(ctx, cfg, logger)
	defer cacheCloser()

	artifacts, artifactsCloser := setupArtifacts(ctx, cfg, logger)
	defer artifactsCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	modelRouter := ai.NewModelRouter(ai.ModelRouterConfig{
		AnalyzePrimary:     cfg.AIModelAnalyzePrimary,
		AnalyzeFallback:    cfg.AIModelAnalyzeFallback,
		AutoReplyPrimary:   cfg.AIModelAutoReplyPrimary,
		AutoReplyFallback:  cfg.AIModelAutoReplyFallback,
		CategorizePrimary:  cfg.AIModelCategorizePrimary,
		CategorizeFallback: cfg.AIModelCategorizeFallback,
	})
	analyzer := analysis.NewAnalyzer(analysis.Dependencies{
		Router:     modelRouter,
		Client:     setupAIClient(cfg, logger),
		Builder:    contextbuilder.NewBuilder(contextbuilder.NewDocumentRetriever(repos.documents)),
		PromptsDir: cfg.PromptsDir,
		Logger:     logger,
	})
	processor := batch.NewProcessor(repos.messages, analyzer, resultCache, batch.Config{
		Concurrency: cfg.BatchConcurrency,
		ItemTimeout: config.Millis(cfg.BatchItemTimeoutMS),
	}, logger)

	aggregator := report.NewAggregator(repos.reports)
	exporter := report.NewExporter(logger)

	api := handlers.NewAPI(
		service.NewMessageService(repos.messages, analyzer, processor),
		service.NewReportService(aggregator, exporter, artifacts, logger),
		schedule.NewService(repos.schedules, repos.runs),
		logger,
	)

	handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		JWTSecret:      cfg.JWTSecret,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	if cfg.WorkerEnabled {
		runProcessor := worker.NewProcessor(worker.Dependencies{
			Consumer:    consumer,
			Runs:        repos.runs,
			Schedules:   repos.schedules,
			Generator:   aggregator,
			Exporter:    exporter,
			Artifacts:   artifacts,
			MaxAttempts: cfg.QueueMaxAttempts,
			Logger:      logger,
		})
		go runProcessor.Start(ctx)
		logger.Printf("worker enabled and started")
	} else {
		logger.Printf("worker disabled by configuration")
	}

	if cfg.SchedulerEnabled {
		runner := schedule.NewRunner(repos.schedules, repos.runs, producer, schedule.RunnerConfig{
			Interval: config.Millis(cfg.SchedulerIntervalMS),
			Lease:    time.Duration(cfg.SchedulerLeaseSeconds) * time.Second,
		}, logger)
		go runner.Start(ctx)
		logger.Printf("scheduler enabled interval_ms=%d", cfg.SchedulerIntervalMS)
	} else {
		logger.Printf("scheduler disabled by configuration")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func setupRepositories(ctx context.Context, cfg config.Config, logger *log.Logger) (repositories, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		return memoryRepositories(), func() {}
	}

	pool, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return memoryRepositories(), func() {}
	}
	logger.Printf("postgres repositories initialized")
	return repositories{
		messages:  repository.NewPostgresMessageRepository(pool),
		documents: repository.NewPostgresDocumentRepository(pool),
		reports:   repository.NewPostgresReportStore(pool),
		schedules: repository.NewPostgresScheduleRepository(pool),
		runs:      repository.NewPostgresRunRepository(pool),
	}, pool.Close
}

func memoryRepositories() repositories {
	messages := repository.NewMemoryMessageRepository()
	return repositories{
		messages:  messages,
		documents: repository.NewMemoryDocumentRepository(),
		reports:   repository.NewMemoryReportStore(messages),
		schedules: repository.NewMemoryScheduleRepository(),
		runs:      repository.NewMemoryRunRepository(),
	}
}

func setupResultCache(ctx context.Context, cfg config.Config, logger *log.Logger) (cache.ResultCache, func()) {
	ttl := time.Duration(cfg.ResultCacheTTLSeconds) * time.Second
	memory := func() cache.ResultCache {
		return cache.NewMemory(cache.Config{TTL: ttl, MaxEntries: cfg.ResultCacheMaxEntries})
	}

	if cfg.ResultCacheBackend != "redis" || cfg.RedisAddr == "" {
		logger.Printf("result cache backend=memory ttl_s=%d max_entries=%d", cfg.ResultCacheTTLSeconds, cfg.ResultCacheMaxEntries)
		return memory(), func() {}
	}

	remote, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      ttl,
	}, logger)
	if err != nil {
		logger.Printf("failed to initialize redis cache, fallback to memory: %v", err)
		return memory(), func() {}
	}
	logger.Printf("result cache backend=redis ttl_s=%d", cfg.ResultCacheTTLSeconds)
	return remote, func() {
		_ = remote.Close()
	}
}

func setupAIClient(cfg config.Config, logger *log.Logger) ai.TextGenerator {
	timeout := config.Millis(cfg.AITimeoutMS)
	if cfg.AIProvider == "openrouter" {
		if cfg.OpenRouterAPIKey == "" {
			logger.Printf("OPENROUTER_API_KEY not configured, analysis will use fallbacks")
		}
		return ai.NewOpenRouterClient(ai.OpenRouterClientConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Timeout:    timeout,
			MaxRetries: cfg.AIMaxRetries,
		})
	}

	if cfg.OpenAIAPIKey == "" {
		logger.Printf("OPENAI_API_KEY not configured, analysis will use fallbacks")
	}
	return ai.NewOpenAIClient(ai.OpenAIClientConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Timeout:    timeout,
		MaxRetries: cfg.AIMaxRetries,
		JSONMode:   true,
	})
}

func setupArtifacts(ctx context.Context, cfg config.Config, logger *log.Logger) (storage.ArtifactStore, func()) {
	switch cfg.ArtifactBackend {
	case "sqlite":
		store, err := storage.OpenSQLite(cfg.ArtifactSQLitePath)
		if err != nil {
			logger.Printf("failed to open sqlite artifact store, fallback to memory: %v", err)
			return storage.NewMemory(), func() {}
		}
		logger.Printf("artifact backend=sqlite path=%s", cfg.ArtifactSQLitePath)
		return store, func() {
			_ = store.Close()
		}
	case "azblob":
		store, err := storage.NewAzureBlob(cfg.AzureConnectionString, cfg.AzureContainer, logger)
		if err == nil {
			err = store.EnsureContainer(ctx)
		}
		if err != nil {
			logger.Printf("failed to initialize azure blob store, fallback to memory: %v", err)
			return storage.NewMemory(), func() {}
		}
		logger.Printf("artifact backend=azblob container=%s", cfg.AzureContainer)
		return store, func() {}
	default:
		logger.Printf("artifact backend=memory")
		return storage.NewMemory(), func() {}
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (queue.Producer, queue.Consumer, func()) {
	var (
		baseProducer queue.Producer
		consumer     queue.Consumer
		baseCloser   = func() {}
	)

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, logger)
		baseProducer = local
		consumer = local
	} else {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Stream:      cfg.RedisStream,
			DLQStream:   cfg.RedisDLQ,
			Group:       cfg.RedisGroup,
			Consumer:    cfg.RedisConsumer,
			MaxAttempts: cfg.QueueMaxAttempts,
		})
		if err != nil {
			logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
			local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, logger)
			baseProducer = local
			consumer = local
		} else {
			logger.Printf("redis streams queue initialized stream=%s group=%s", cfg.RedisStream, cfg.RedisGroup)
			baseProducer = streams
			consumer = streams
			baseCloser = func() {
				_ = streams.Close()
			}
		}
	}

	producer := baseProducer
	batchingCloser := func() {}
	if cfg.QueueBatchingEnabled {
		batching := queue.NewBatchingProducer(ctx, baseProducer, queue.BatchingConfig{
			MaxBatchSize:       cfg.QueueBatchSize,
			FlushInterval:      config.Millis(cfg.QueueBatchFlushMS),
			FlushTimeout:       config.Millis(cfg.QueueBatchFlushTimeoutMS),
			QueueCapacity:      cfg.QueueBatchQueueCapacity,
			MaxInFlightBatches: cfg.QueueBatchMaxInFlight,
		})
		producer = batching
		batchingCloser = batching.Close
		logger.Printf(
			"queue batching enabled size=%d flush_ms=%d queue_capacity=%d max_in_flight=%d",
			cfg.QueueBatchSize,
			cfg.QueueBatchFlushMS,
			cfg.QueueBatchQueueCapacity,
			cfg.QueueBatchMaxInFlight,
		)
	}

	return producer, consumer, func() {
		batchingCloser()
		baseCloser()
	}
}
