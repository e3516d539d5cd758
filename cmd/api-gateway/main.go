package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniflow/facilitation-api/api/swagger"
	"github.com/uniflow/facilitation-api/internal/handler"
	"github.com/uniflow/facilitation-api/internal/middleware"
	"github.com/uniflow/facilitation-api/internal/models"
	"github.com/uniflow/facilitation-api/internal/repository"
	"github.com/uniflow/facilitation-api/internal/service"
	"github.com/uniflow/facilitation-api/pkg/cache"
	"github.com/uniflow/facilitation-api/pkg/config"
	"github.com/uniflow/facilitation-api/pkg/database"
	"github.com/uniflow/facilitation-api/pkg/export"
	"github.com/uniflow/facilitation-api/pkg/jobs"
	"github.com/uniflow/facilitation-api/pkg/logger"
	corsmiddleware "github.com/uniflow/facilitation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniflow/facilitation-api/pkg/middleware/requestid"
	"github.com/uniflow/facilitation-api/pkg/storage"
)

// @title Facilitation API
// @version 1.0.0
// @description Facilitator availability, schedule publication and swap coordination
// @BasePath /api/v1
// @schemes http

const shutdownTimeout = 10 * time.Second

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability listings will not be cached", "error", err)
		redisClient = nil
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	skillRepo := repository.NewSkillRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	unavailabilityRepo := repository.NewUnavailabilityRepository(db)
	swapRepo := repository.NewSwapRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Availability.CacheTTL, logr, redisClient != nil)

	notifier := service.NewNotificationService(
		service.LogSender{Logger: logr},
		jobs.QueueConfig{
			Workers:    cfg.Notifications.WorkerConcurrency,
			MaxRetries: cfg.Notifications.WorkerRetries,
			Logger:     logr,
		},
		logr,
	)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	availabilitySvc := service.NewAvailabilityService(
		unavailabilityRepo, assignmentRepo, unitRepo, userRepo, skillRepo,
		cacheSvc, cfg.Availability.CacheTTL, logr,
	)
	unavailabilitySvc := service.NewUnavailabilityService(
		unavailabilityRepo, userRepo, unitRepo, assignmentRepo, availabilitySvc,
		metricsSvc, nil, logr,
	)
	swapSvc := service.NewSwapService(
		swapRepo, assignmentRepo, userRepo, unitRepo, skillRepo, availabilitySvc,
		notifier, metricsSvc, nil, logr,
	)

	var (
		pdfExporter *export.PDFExporter
		files       *storage.LocalStorage
		signer      *storage.SignedURLSigner
	)
	if cfg.Reports.Enabled {
		pdfExporter = export.NewPDFExporter()
		files, err = storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		signer = storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	}
	publicationSvc := service.NewPublicationService(
		scheduleRepo, unitRepo, assignmentRepo, unavailabilityRepo, userRepo,
		availabilitySvc, notifier, metricsSvc, pdfExporter, files, signer, nil, logr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	notifier.Start(ctx)
	defer notifier.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	unavailabilityHandler := handler.NewUnavailabilityHandler(unavailabilitySvc)
	swapHandler := handler.NewSwapHandler(swapSvc)
	publicationHandler := handler.NewPublicationHandler(publicationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.ResponseTime())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Report downloads are authenticated by the signed token itself.
	api.GET("/schedule-reports/:token", publicationHandler.DownloadReport)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		facilitators := protected.Group("/facilitators/:id")
		facilitators.Use(middleware.RBAC(middleware.SelfAccess,
			string(models.RoleAdmin), string(models.RoleUnitCoordinator)))
		{
			facilitators.GET("/availability", availabilityHandler.Check)
			facilitators.GET("/unavailability", unavailabilityHandler.List)
			facilitators.POST("/unavailability", unavailabilityHandler.Create)
			facilitators.DELETE("/unavailability", unavailabilityHandler.ClearAll)
			facilitators.POST("/unavailability/recurring", unavailabilityHandler.GenerateRecurring)
		}

		protected.PUT("/unavailability/:id", unavailabilityHandler.Update)
		protected.DELETE("/unavailability/:id", unavailabilityHandler.Delete)

		protected.GET("/sessions/:id/available-facilitators", availabilityHandler.AvailableFacilitators)

		units := protected.Group("/units/:id")
		{
			units.GET("/sessions", publicationHandler.ListSchedule)
			units.GET("/unavailability",
				middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
				unavailabilityHandler.ListUnit)
			units.GET("/swaps",
				middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
				swapHandler.ListUnit)
			units.PUT("/assignments",
				middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
				publicationHandler.ReplaceAssignments)
			units.POST("/schedule/publish",
				middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
				publicationHandler.Publish)
			units.POST("/schedule/unpublish",
				middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
				publicationHandler.Unpublish)
		}

		swaps := protected.Group("/swaps")
		{
			swaps.GET("", swapHandler.ListMine)
			swaps.POST("", swapHandler.Create)
			swaps.POST("/exchange", swapHandler.CreateExchange)
			swaps.GET("/:id", swapHandler.Get)
			swaps.POST("/:id/facilitator-response", swapHandler.FacilitatorRespond)
			swaps.POST("/:id/coordinator-response",
				middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
				swapHandler.CoordinatorRespond)
			if cfg.Swaps.LegacyReviewEnabled {
				swaps.POST("/:id/review",
					middleware.RequireRoles(models.RoleAdmin, models.RoleUnitCoordinator),
					swapHandler.ResolvePending)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Warnw("graceful shutdown failed", "error", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
