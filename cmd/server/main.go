package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/jmobrien1/document-markdown-converter/internal/auth"
	"github.com/jmobrien1/document-markdown-converter/internal/config"
	"github.com/jmobrien1/document-markdown-converter/internal/handler"
	"github.com/jmobrien1/document-markdown-converter/internal/middleware"
	"github.com/jmobrien1/document-markdown-converter/internal/queue"
	"github.com/jmobrien1/document-markdown-converter/internal/repository/postgres"
	"github.com/jmobrien1/document-markdown-converter/internal/service/conversion"
	"github.com/jmobrien1/document-markdown-converter/internal/service/upload"
	"github.com/jmobrien1/document-markdown-converter/internal/service/usage"
	"github.com/jmobrien1/document-markdown-converter/internal/storage"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, "api", 10)
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

	logger.Info("api starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier for account auth
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Postgres
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	jobRepo := postgres.NewJobRepository(repoConfig)
	usageRepo := postgres.NewUsageRepository(repoConfig)
	userRepo := postgres.NewUserRepository(repoConfig)

	// Redis task queue
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

	// Object storage
	store := storage.NewS3Store(storage.S3Config{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3UsePathStyle,
	})

	// Services
	validator, err := upload.NewValidator()
	if err != nil {
		log.Fatalf("Failed to load signature table: %v", err)
	}
	limiter := usage.NewLimiter(usageRepo, userRepo, cfg.AnonymousDailyLimit, logger)
	dispatcher := conversion.NewDispatcher(validator, limiter, jobRepo, store, taskQueue, logger,
		conversion.WithMaxUploadBytes(cfg.MaxUploadBytes))
	poller := conversion.NewPoller(jobRepo)

	logger.Info("services initialized")

	// Handlers
	convertHandler := handler.NewConvertHandler(dispatcher, logger)
	statusHandler := handler.NewStatusHandler(poller, logger)
	accountHandler := handler.NewAccountHandler(limiter, poller, logger)
	healthHandler := handler.NewHealthHandler(pool, taskQueue, logger)

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/web", healthHandler.Web)
	mux.HandleFunc("GET /health/worker", healthHandler.Worker)

	// Conversion routes
	mux.HandleFunc("POST /convert", convertHandler.Convert)
	mux.HandleFunc("GET /status/{id}", statusHandler.Status)
	mux.HandleFunc("GET /result/{id}", statusHandler.Result)
	mux.HandleFunc("GET /result/{id}/preview", statusHandler.Preview)

	// Account routes
	mux.HandleFunc("GET /user-status", accountHandler.UserStatus)
	mux.HandleFunc("GET /stats", accountHandler.Stats)
	mux.HandleFunc("GET /history", middleware.RequireAuth(accountHandler.History))

	// API-key surface for programmatic clients
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/v1/convert", convertHandler.Convert)
	apiMux.HandleFunc("GET /api/v1/status/{id}", statusHandler.Status)
	apiMux.HandleFunc("GET /api/v1/result/{id}", statusHandler.Result)
	mux.Handle("/api/v1/", middleware.APIKey(userRepo)(apiMux))

	// Build middleware chain; applied in reverse order (they wrap each
	// other): CORS -> Recovery -> Auth -> Session -> Routes
	var root http.Handler = mux
	root = middleware.Session(cfg.SessionCookie, cfg.Environment == "prod")(root)
	root = middleware.Auth(jwtVerifier, userRepo, logger)(root)
	root = middleware.Recovery(logger)(root)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  60 * time.Second, // uploads can be slow on bad links
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Serve until interrupted, then drain
	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
