package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/jmobrien1/document-markdown-converter/internal/config"
	"github.com/jmobrien1/document-markdown-converter/internal/converter"
	"github.com/jmobrien1/document-markdown-converter/internal/queue"
	"github.com/jmobrien1/document-markdown-converter/internal/repository/postgres"
	"github.com/jmobrien1/document-markdown-converter/internal/scanner"
	"github.com/jmobrien1/document-markdown-converter/internal/service/usage"
	"github.com/jmobrien1/document-markdown-converter/internal/storage"
	"github.com/jmobrien1/document-markdown-converter/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, "worker", 10)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("worker starting",
		"environment", cfg.Environment,
		"concurrency", cfg.WorkerConcurrency,
	)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	jobRepo := postgres.NewJobRepository(repoConfig)
	userRepo := postgres.NewUserRepository(repoConfig)
	usageRepo := postgres.NewUsageRepository(repoConfig)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	taskQueue := queue.NewRedisQueue(redisClient, queue.RedisQueueConfig{
		PendingKey:    cfg.PendingQueue,
		ProcessingKey: cfg.ProcessingQueue,
		FailedKey:     cfg.FailedQueue,
	}, logger)

	store := storage.NewS3Store(storage.S3Config{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3UsePathStyle,
	})

	registry := converter.NewStandardRegistry(
		converter.WithMarkitdownBinary(cfg.MarkitdownBinary),
	)

	var pro converter.Engine
	if cfg.DocAIURL != "" {
		pro = converter.NewDocAIEngine(cfg.DocAIURL, cfg.DocAIAPIKey)
		logger.Info("pro conversion enabled", "docai_url", cfg.DocAIURL)
	} else {
		logger.Warn("DOCAI_URL not set, pro conversions will fail")
	}

	sc := scanner.New(logger,
		scanner.WithBinary(cfg.ClamscanBinary),
		scanner.WithTimeout(cfg.ScanTimeout),
	)

	txManager := postgres.NewTransactionManager(pool)

	pool2 := worker.NewPool(taskQueue, store, jobRepo, userRepo, txManager, registry, pro, sc, logger, worker.Options{
		Concurrency:    cfg.WorkerConcurrency,
		ConvertTimeout: cfg.ConvertTimeout,
	})

	runCtx, cancel := context.WithCancel(ctx)

	// Daily counter sweep; Reserve's lazy rollover keeps correctness if
	// this process is down at midnight.
	limiter := usage.NewLimiter(usageRepo, userRepo, cfg.AnonymousDailyLimit, logger)
	go sweepUsage(runCtx, limiter, logger)
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	pool2.Run(runCtx)
}

// sweepUsage periodically zeroes anonymous counters whose day has
// passed, keeping the usage table from accumulating stale counts.
func sweepUsage(ctx context.Context, limiter *usage.Limiter, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := limiter.ResetAll(ctx); err != nil {
				logger.Error("usage sweep", "error", err)
			}
		}
	}
}
