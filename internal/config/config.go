package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string

	// Database
	DatabaseURL string
	TablePrefix string

	// Redis queue
	RedisURL        string
	PendingQueue    string
	ProcessingQueue string
	FailedQueue     string

	// Object storage (S3-compatible)
	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string // non-empty for MinIO/localstack
	S3UsePathStyle bool

	// Auth
	JWKSURL       string
	SessionCookie string

	// Quotas
	AnonymousDailyLimit int
	MaxUploadBytes      int64

	// Conversion
	WorkerConcurrency int
	ConvertTimeout    time.Duration
	MarkitdownBinary  string
	ClamscanBinary    string
	ScanTimeout       time.Duration

	// Pro tier document-AI service
	DocAIURL    string
	DocAIAPIKey string

	// Logging
	LogDir string // when set, logs are also written to rotated files here

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),

		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PendingQueue:    getEnv("PENDING_QUEUE", "conversion:pending"),
		ProcessingQueue: getEnv("PROCESSING_QUEUE", "conversion:processing"),
		FailedQueue:     getEnv("FAILED_QUEUE", "conversion:failed"),

		S3Bucket:       getEnv("S3_BUCKET", "mdraft-uploads"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnv("S3_USE_PATH_STYLE", "") == "true",

		JWKSURL:       getEnv("JWKS_URL", ""),
		SessionCookie: getEnv("SESSION_COOKIE", "mdraft_session"),

		AnonymousDailyLimit: getEnvInt("ANONYMOUS_DAILY_LIMIT", 5),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_BYTES", 16<<20)),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		ConvertTimeout:    getEnvDuration("CONVERT_TIMEOUT", 5*time.Minute),
		MarkitdownBinary:  getEnv("MARKITDOWN_BINARY", "markitdown"),
		ClamscanBinary:    getEnv("CLAMSCAN_BINARY", "clamscan"),
		ScanTimeout:       getEnvDuration("SCAN_TIMEOUT", 30*time.Second),

		DocAIURL:    getEnv("DOCAI_URL", ""),
		DocAIAPIKey: getEnv("DOCAI_API_KEY", ""),

		LogDir: getEnv("LOG_DIR", ""),

		// Default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
