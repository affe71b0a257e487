package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-results-api/api/swagger"
	"github.com/noah-isme/school-results-api/internal/handler"
	internalmiddleware "github.com/noah-isme/school-results-api/internal/middleware"
	"github.com/noah-isme/school-results-api/internal/repository"
	"github.com/noah-isme/school-results-api/internal/service"
	"github.com/noah-isme/school-results-api/pkg/cache"
	"github.com/noah-isme/school-results-api/pkg/config"
	"github.com/noah-isme/school-results-api/pkg/database"
	"github.com/noah-isme/school-results-api/pkg/events"
	"github.com/noah-isme/school-results-api/pkg/jobs"
	"github.com/noah-isme/school-results-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-results-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-results-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-results-api/pkg/storage"
)

// @title School Results API
// @version 1.0.0
// @description Academic periods, assessments, grading and ranked term results
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, results cache disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	bus := events.NewBus(cfg.Events, logr.Named("events"))
	defer bus.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	yearRepo := repository.NewAcademicYearRepository(db)
	termRepo := repository.NewAcademicTermRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	bandRepo := repository.NewGradingSystemRepository(db)
	resultRepo := repository.NewResultRepository(db)
	classStudentRepo := repository.NewClassStudentRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Results.CacheTTL, logr, cfg.Results.CacheEnabled && redisClient != nil)

	periodSvc := service.NewPeriodService(yearRepo, termRepo, bus, metrics, validate, logr, cfg.Periods.Location)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, periodSvc, sectionRepo, subjectRepo, bus, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, assessmentRepo, studentRepo, classStudentRepo, periodSvc, bus, metrics, validate, logr)
	bandSvc := service.NewGradingSystemService(bandRepo, bus, validate, logr)
	resultSvc := service.NewResultService(resultRepo, gradeRepo, classStudentRepo, bandRepo, sectionRepo, subjectRepo, periodSvc, cacheSvc, metrics, cfg.Results.CacheTTL, logr)

	invalidator := service.NewResultsCacheInvalidator(cacheSvc, logr)
	if err := invalidator.Register(ctx, bus); err != nil {
		logr.Sugar().Fatalw("failed to subscribe results cache invalidator", "error", err)
	}

	handlers := handler.Handlers{
		Periods:        handler.NewPeriodHandler(periodSvc),
		Assessments:    handler.NewAssessmentHandler(assessmentSvc),
		Grades:         handler.NewGradeHandler(gradeSvc),
		GradingSystems: handler.NewGradingSystemHandler(bandSvc),
		Results:        handler.NewResultHandler(resultSvc),
		Metrics:        handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)...),
	}

	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exporter := service.NewResultExporter(resultSvc, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr)

		worker := service.NewExportWorker(exportRepo, exporter, logr)
		queue := jobs.NewQueue("results-export", worker.Handle, jobs.QueueConfig{
			Workers:      cfg.Exports.WorkerConcurrency,
			MaxRetries:   cfg.Exports.WorkerRetries,
			RetryDelay:   2 * time.Second,
			OnDeadLetter: worker.MarkFailed,
			Logger:       logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		exportSvc := service.NewExportService(exportRepo, periodSvc, sectionRepo, queue, exporter, validate, logr, service.ExportServiceConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		})
		exportSvc.RecoverPendingJobs(ctx)
		exportSvc.StartCleanup(ctx)
		handlers.Exports = handler.NewExportHandler(exportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	handler.RegisterRoutes(r, handlers, handler.RouterConfig{
		APIPrefix:  cfg.APIPrefix,
		Auth:       internalmiddleware.JWT(service.NewTokenValidator(cfg.JWT.Secret)),
		EnableDocs: cfg.Env != config.EnvProduction,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{{Name: "database", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return cache.Ping(ctx, redisClient)
		}})
	}
	return checks
}
