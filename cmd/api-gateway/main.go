package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/assessment-window-api/api/swagger"
	"github.com/noah-isme/assessment-window-api/internal/handler"
	internalmiddleware "github.com/noah-isme/assessment-window-api/internal/middleware"
	"github.com/noah-isme/assessment-window-api/internal/repository"
	"github.com/noah-isme/assessment-window-api/internal/router"
	"github.com/noah-isme/assessment-window-api/internal/service"
	"github.com/noah-isme/assessment-window-api/pkg/cache"
	"github.com/noah-isme/assessment-window-api/pkg/config"
	"github.com/noah-isme/assessment-window-api/pkg/database"
	"github.com/noah-isme/assessment-window-api/pkg/jobs"
	"github.com/noah-isme/assessment-window-api/pkg/logger"
	"github.com/noah-isme/assessment-window-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/assessment-window-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assessment-window-api/pkg/middleware/requestid"
	"github.com/noah-isme/assessment-window-api/pkg/storage"
)

// @title Assessment Window API
// @version 1.0.0
// @description Time-windowed assessment scheduling and access control
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching and redis notifications disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = messaging.NewNATS(cfg.NATS, logr)
		if err != nil {
			logr.Warn("nats unavailable, nats notifications disabled", zap.Error(err))
			natsConn = nil
		} else {
			defer natsConn.Drain() //nolint:errcheck
		}
	}

	calc, err := service.NewWindowCalculator(cfg.Schedule)
	if err != nil {
		logr.Fatal("invalid schedule configuration", zap.Error(err))
	}

	exportStorage, err := storage.NewLocalStorage(cfg.Incomplete.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	progressRepo := repository.NewProgressRepository(db)
	periodRepo := repository.NewScheduledPeriodRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	instanceRepo := repository.NewAssessmentInstanceRepository(db)
	rescheduleRepo := repository.NewRescheduleRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	termRepo := repository.NewTermRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	topicRepo := repository.NewLessonTopicRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, "assessment-window", logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Incomplete.CacheTTL, logr, true)
	}

	notifications := service.NewNotificationService(redisClient, natsConn, cfg.Notifications, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	incompleteSvc := service.NewIncompleteService(progressRepo, cacheSvc, calc, validate, logr, cfg.Incomplete.CacheTTL)
	progressEvents := service.NewProgressEventInvalidator(notifications, incompleteSvc)

	progressSvc := service.NewProgressService(progressRepo, periodRepo, assessmentRepo, calc, logr)
	accessSvc := service.NewAccessService(progressSvc, rescheduleRepo, submissionRepo, calc, metrics, logr)
	validatorSvc := service.NewSubmissionValidatorService(submissionRepo, progressRepo, periodRepo, progressEvents, metrics, logr, cfg.Validator)
	submissionSvc := service.NewSubmissionService(accessSvc, submissionRepo, progressRepo, validatorSvc, progressEvents, db, validate, logr)
	rescheduleSvc := service.NewRescheduleService(progressRepo, rescheduleRepo, rosterRepo, progressEvents, db, calc, metrics, validate, logr, cfg.Reschedule)
	shufflerSvc := service.NewQuestionShufflerService(instanceRepo, assessmentRepo, metrics, logr)
	generationSvc := service.NewGenerationService(service.GenerationDeps{
		Terms:       termRepo,
		Timetable:   timetableRepo,
		Topics:      topicRepo,
		Periods:     periodRepo,
		Progress:    progressRepo,
		Assessments: assessmentRepo,
		Shuffler:    shufflerSvc,
		Tx:          db,
		Calculator:  calc,
		Events:      notifications,
		Metrics:     metrics,
		Logger:      logr,
	})
	exportSvc := service.NewExportService(
		incompleteSvc,
		exportStorage,
		storage.NewSignedURLSigner(cfg.Incomplete.SignedURLSecret, cfg.Incomplete.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix},
		validate,
		logr,
		nil,
		nil,
	)

	worker := service.NewGenerationWorker(generationSvc, nil, logr)
	generationQueue := jobs.NewQueue("weekly-generation", func(ctx context.Context, job jobs.Job) error {
		if err := worker.Handle(ctx, job); err != nil {
			return err
		}
		incompleteSvc.Invalidate(ctx)
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Generation.Workers,
		MaxRetries: cfg.Generation.MaxRetries,
		RetryDelay: cfg.Generation.RetryDelay,
		Logger:     logr,
	})
	generationQueue.Start(ctx)
	defer generationQueue.Stop()
	generationJobs := service.NewGenerationJobService(generationQueue, logr)

	validatorSvc.StartSweeper(ctx)
	service.NewIncompleteMarkerService(progressRepo, calc, incompleteSvc, metrics, logr, cfg.Incomplete).StartMarker(ctx)
	jobs.Every(ctx, "export-cleanup", cfg.Incomplete.SignedURLTTL, false, logr, func(ctx context.Context, now time.Time) error {
		removed, err := exportStorage.CleanupOlderThan(cfg.Incomplete.SignedURLTTL, now)
		if len(removed) > 0 {
			logr.Info("expired exports removed", zap.Int("count", len(removed)))
		}
		return err
	})

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = redisPinger{client: redisClient}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	router.Register(r, cfg.APIPrefix, router.Dependencies{
		Access:     handler.NewAccessHandler(accessSvc),
		Submission: handler.NewSubmissionHandler(submissionSvc, validatorSvc),
		Reschedule: handler.NewRescheduleHandler(rescheduleSvc),
		Generation: handler.NewGenerationHandler(generationSvc, generationJobs, incompleteSvc),
		Incomplete: handler.NewIncompleteHandler(incompleteSvc, exportSvc),
		Instance:   handler.NewInstanceHandler(shufflerSvc),
		Metrics:    handler.NewMetricsHandler(metrics, checks),
		Auth:       internalmiddleware.JWT(authSvc),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

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
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
