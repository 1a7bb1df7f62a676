// PainScope server - ingests Hacker News discussions, clusters them into
// pain-point themes with an LLM, and streams progress to clients.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/painscope/painscope/pkg/analyzer"
	"github.com/painscope/painscope/pkg/api"
	"github.com/painscope/painscope/pkg/cache"
	"github.com/painscope/painscope/pkg/cleanup"
	"github.com/painscope/painscope/pkg/config"
	"github.com/painscope/painscope/pkg/database"
	"github.com/painscope/painscope/pkg/events"
	"github.com/painscope/painscope/pkg/hackernews"
	"github.com/painscope/painscope/pkg/notify"
	"github.com/painscope/painscope/pkg/queue"
	"github.com/painscope/painscope/pkg/services"
	"github.com/painscope/painscope/pkg/version"
	"github.com/painscope/painscope/pkg/worker"
)

const wsWriteTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.Info("Starting painscope", "version", version.Full(), "http_port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database (runs migrations on startup).
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL, schema up to date")

	// Redis result cache.
	resultCache := cache.New(cfg.Cache)
	if err := resultCache.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = resultCache.Close() }()
	slog.Info("Connected to Redis")

	// Store services.
	pool := dbClient.Pool()
	searchService := services.NewSearchService(pool, cfg.Queue.MaxRetries)
	resultService := services.NewResultService(pool)
	eventService := services.NewEventService(pool)
	jobLogService := services.NewJobLogService(pool)

	intakeService := services.NewIntakeService(resultCache, searchService)
	statusService := services.NewStatusService(resultCache, searchService)

	// Event delivery: durable emitter + NOTIFY listener + WS fan-out.
	emitter := events.NewEmitter(dbClient.DB())
	connManager := events.NewConnectionManager(eventService, resultService, searchService, wsWriteTimeout)
	listener := events.NewNotifyListener(dbClient.ConnString(), connManager)
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("Failed to start NOTIFY listener: %v", err)
	}
	connManager.SetListener(listener)
	defer listener.Stop(context.Background())

	// Worker pipeline and scheduler.
	newsSource := hackernews.NewClient(cfg.News)
	llm := analyzer.NewClient(cfg.Analyzer)
	executor := worker.NewExecutor(
		cfg.Worker, newsSource, llm,
		searchService, resultService, emitter, resultCache, jobLogService,
		cfg.Analyzer.CostPerMTok,
	)
	executor.SetNotifier(notify.NewService(cfg.Notify))

	scheduler := queue.NewScheduler(cfg.Queue, searchService, executor)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Retention sweep.
	cleaner := cleanup.NewService(cfg.RetentionDays, searchService, jobLogService)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// HTTP API.
	server := api.NewServer(intakeService, statusService, scheduler, connManager, dbClient.DB())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + cfg.HTTPPort)
	}()
	slog.Info("HTTP server listening", "port", cfg.HTTPPort)

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
