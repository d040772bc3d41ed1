package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/database"
	"github.com/gradelab/scriptgrade-backend/internal/handler"
	"github.com/gradelab/scriptgrade-backend/internal/logger"
	"github.com/gradelab/scriptgrade-backend/internal/pipeline"
	"github.com/gradelab/scriptgrade-backend/internal/provider"
	"github.com/gradelab/scriptgrade-backend/internal/repository"
	"github.com/gradelab/scriptgrade-backend/internal/router"
	"github.com/gradelab/scriptgrade-backend/internal/service"
	"github.com/gradelab/scriptgrade-backend/internal/validator"
	"github.com/gradelab/scriptgrade-backend/internal/worker"
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
		Msg("Starting ScriptGrade Backend")

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
	jobRepo := repository.NewJobRepository(pool)
	refRepo := repository.NewReferenceRepository(pool)

	// ─── Initialize Providers ──────────────────────────────────────────
	splitter := provider.NewFitzSplitter(log)
	preprocessor := provider.NewGrayscalePreprocessor(cfg.UploadDir+"/processed", log)
	fastEngine := provider.NewTesseractExtractor(cfg.TesseractLang, log)
	accurateEngine := provider.NewTrOCRExtractor(cfg.TrOCRBaseURL, cfg.TrOCRTimeout, log)
	renderer := provider.NewFileRenderer(cfg.ReportDir, log)

	assessor, err := provider.NewGeminiAssessor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Gemini")
	}

	// ─── Wire the Pipeline ─────────────────────────────────────────────
	gradeBands, err := pipeline.ParseGradeBands(cfg.GradeBands)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid GRADE_BANDS")
	}

	events := worker.NewRedisEventPublisher(rdb, log)
	driver := pipeline.NewDriver(jobRepo, refRepo, pipeline.Providers{
		Preprocessor:   preprocessor,
		FastEngine:     fastEngine,
		AccurateEngine: accurateEngine,
		Grader:         assessor,
		Feedback:       assessor,
		Renderer:       renderer,
	}, pipeline.Policy{
		ConfidenceThreshold:  cfg.ConfidenceThreshold,
		AssumedQuestionCount: cfg.AssumedQuestionCount,
		GradeBands:           gradeBands,
	}, events, log)

	// ─── Initialize Services ──────────────────────────────────────────
	storageService := service.NewStorageService(cfg)
	jobService := service.NewJobService(jobRepo, storageService, splitter, rdb, cfg, log)
	refService := service.NewReferenceService(refRepo, storageService, splitter, preprocessor, fastEngine, cfg, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Job:        handler.NewJobHandler(jobService),
		Assessment: handler.NewAssessmentHandler(driver),
		Reference:  handler.NewReferenceHandler(refService, rdb),
		System:     handler.NewSystemHandler(rdb, log),
		WS:         handler.NewWSHandler(rdb, jobService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	pipelineWorker := worker.NewPipelineWorker(driver, rdb, cfg.WorkerCount, log)
	referenceWorker := worker.NewReferenceWorker(refService, rdb, log)

	go pipelineWorker.Start(workerCtx)
	go referenceWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
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

	// 2. Stop background workers and wait for in-flight jobs to settle.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
