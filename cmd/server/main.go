package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/classpoll/internal/config"
	"github.com/stemsi/classpoll/internal/database"
	"github.com/stemsi/classpoll/internal/handler"
	"github.com/stemsi/classpoll/internal/logger"
	"github.com/stemsi/classpoll/internal/repository"
	"github.com/stemsi/classpoll/internal/router"
	"github.com/stemsi/classpoll/internal/service"
	"github.com/stemsi/classpoll/internal/validator"
	"github.com/stemsi/classpoll/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting classpoll server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	optionRepo := repository.NewOptionRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, rdb, log)
	userService := service.NewUserService(pool, userRepo, log)
	countsService := service.NewCountsService(responseRepo, rdb, log)
	sessionService := service.NewSessionService(pool, sessionRepo, responseRepo, countsService, rdb, cfg.TreeCacheTTL, log)
	questionService := service.NewQuestionService(pool, sessionRepo, questionRepo, optionRepo, responseRepo, sessionService, countsService, log)
	optionService := service.NewOptionService(questionService, log)
	responseService := service.NewResponseService(sessionRepo, optionRepo, responseRepo, rdb, log)
	dashboardService := service.NewDashboardService(dashboardRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		Admin:     handler.NewAdminHandler(userService, log),
		Session:   handler.NewSessionHandler(sessionService, log),
		Question:  handler.NewQuestionHandler(questionService, log),
		Option:    handler.NewOptionHandler(optionService, log),
		Student:   handler.NewStudentHandler(sessionService, responseService, log),
		WS:        handler.NewWSHandler(sessionService, countsService, log, cfg.AllowedOrigins),
		System:    handler.NewSystemHandler(rdb, log),
		Dashboard: handler.NewDashboardHandler(dashboardService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	responseWorker := worker.NewResponseWorker(responseRepo, sessionService, countsService, rdb, cfg.ResponseBatchSize, log)
	workers.Go(func() { responseWorker.Start(workerCtx) })

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, rdb, log)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the response worker; it flushes its pending batch before returning.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
