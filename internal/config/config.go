package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the API, scheduler and worker.
type Config struct {
	Port string

	JWTSecret string

	DatabaseURL string

	AIProvider        string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	AITimeoutMS       int
	AIMaxRetries      int

	AIModelAnalyzePrimary     string
	AIModelAnalyzeFallback    string
	AIModelAutoReplyPrimary   string
	AIModelAutoReplyFallback  string
	AIModelCategorizePrimary  string
	AIModelCategorizeFallback string

	PromptsDir string

	ResultCacheBackend    string
	ResultCacheTTLSeconds int
	ResultCacheMaxEntries int

	BatchConcurrency   int
	BatchItemTimeoutMS int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	ArtifactBackend       string
	ArtifactSQLitePath    string
	AzureConnectionString string
	AzureContainer        string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	QueueBatchingEnabled     bool
	QueueBatchSize           int
	QueueBatchFlushMS        int
	QueueBatchFlushTimeoutMS int
	QueueBatchQueueCapacity  int
	QueueBatchMaxInFlight    int
	QueueMaxAttempts         int

	WorkerEnabled         bool
	SchedulerEnabled      bool
	SchedulerIntervalMS   int
	SchedulerLeaseSeconds int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		AITimeoutMS:       getEnvInt("AI_TIMEOUT_MS", 15000),
		AIMaxRetries:      getEnvInt("AI_MAX_RETRIES", 2),

		AIModelAnalyzePrimary:     getEnv("AI_MODEL_ANALYZE_PRIMARY", "gpt-4.1-mini"),
		AIModelAnalyzeFallback:    getEnv("AI_MODEL_ANALYZE_FALLBACK", "gpt-4.1-nano"),
		AIModelAutoReplyPrimary:   getEnv("AI_MODEL_AUTO_REPLY_PRIMARY", "gpt-4.1-mini"),
		AIModelAutoReplyFallback:  getEnv("AI_MODEL_AUTO_REPLY_FALLBACK", "gpt-4.1-nano"),
		AIModelCategorizePrimary:  getEnv("AI_MODEL_CATEGORIZE_PRIMARY", "gpt-4.1-nano"),
		AIModelCategorizeFallback: getEnv("AI_MODEL_CATEGORIZE_FALLBACK", "gpt-4.1-mini"),

		PromptsDir: getEnv("PROMPTS_DIR", ""),

		ResultCacheBackend:    strings.ToLower(getEnv("RESULT_CACHE_BACKEND", "memory")),
		ResultCacheTTLSeconds: getEnvInt("RESULT_CACHE_TTL_SECONDS", 300),
		ResultCacheMaxEntries: getEnvInt("RESULT_CACHE_MAX_ENTRIES", 5000),

		BatchConcurrency:   getEnvInt("BATCH_CONCURRENCY", 5),
		BatchItemTimeoutMS: getEnvInt("BATCH_ITEM_TIMEOUT_MS", 30000),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "report_runs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "report_runs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "report_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		ArtifactBackend:       strings.ToLower(getEnv("ARTIFACT_BACKEND", "memory")),
		ArtifactSQLitePath:    getEnv("ARTIFACT_SQLITE_PATH", "data/artifacts.db"),
		AzureConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureContainer:        getEnv("AZURE_STORAGE_CONTAINER", "report-artifacts"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),

		QueueBatchingEnabled:     getEnvBool("QUEUE_BATCHING_ENABLED", true),
		QueueBatchSize:           getEnvInt("QUEUE_BATCH_SIZE", 32),
		QueueBatchFlushMS:        getEnvInt("QUEUE_BATCH_FLUSH_MS", 25),
		QueueBatchFlushTimeoutMS: getEnvInt("QUEUE_BATCH_FLUSH_TIMEOUT_MS", 3000),
		QueueBatchQueueCapacity:  getEnvInt("QUEUE_BATCH_QUEUE_CAPACITY", 2048),
		QueueBatchMaxInFlight:    getEnvInt("QUEUE_BATCH_MAX_IN_FLIGHT", 4),
		QueueMaxAttempts:         getEnvInt("QUEUE_MAX_ATTEMPTS", 3),

		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		SchedulerEnabled:      getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerIntervalMS:   getEnvInt("SCHEDULER_INTERVAL_MS", 60000),
		SchedulerLeaseSeconds: getEnvInt("SCHEDULER_LEASE_SECONDS", 600),
	}
}

func Millis(value int) time.Duration {
	return time.Duration(value) * time.Millisecond
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
