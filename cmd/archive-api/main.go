package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/openfolio/archive-api/api/swagger"
	"github.com/openfolio/archive-api/internal/deposit"
	"github.com/openfolio/archive-api/internal/handler"
	"github.com/openfolio/archive-api/internal/middleware"
	"github.com/openfolio/archive-api/internal/repository"
	"github.com/openfolio/archive-api/internal/service"
	"github.com/openfolio/archive-api/internal/translator"
	"github.com/openfolio/archive-api/internal/vocab"
	"github.com/openfolio/archive-api/pkg/cache"
	"github.com/openfolio/archive-api/pkg/config"
	"github.com/openfolio/archive-api/pkg/database"
	"github.com/openfolio/archive-api/pkg/jobs"
	"github.com/openfolio/archive-api/pkg/logger"
	corsmiddleware "github.com/openfolio/archive-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openfolio/archive-api/pkg/middleware/requestid"
	"github.com/openfolio/archive-api/pkg/storage"
)

// @title Openfolio Archive API
// @version 1.0.0
// @description Archival pipeline bridging portfolio entries to the long-term archive service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The vocabulary cache is an optimization; resolution still
		// works straight off the static table.
		logr.Sugar().Warnw("redis unavailable, vocabulary cache disabled", "error", err)
		redisClient = nil
	}

	entryRepo := repository.NewEntryRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	resolver := vocab.NewCachedResolver(vocab.NewStaticResolver(), cacheRepo, cfg.Vocab.CacheTTL, logr)
	trans := translator.New(resolver, logr)

	client := deposit.NewClient(deposit.Config{
		BaseURL:  cfg.Archiver.BaseURL,
		BaseURI:  cfg.Archiver.BaseURI,
		Username: cfg.Archiver.Username,
		Password: cfg.Archiver.Password,
		Timeout:  cfg.Archiver.Timeout,
	}, logr)

	mediaFiles, err := storage.NewLocalStorage(cfg.Archiver.MediaDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init media storage", "error", err)
	}
	receiptFiles, err := storage.NewLocalStorage(cfg.Archiver.ReceiptDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init receipt storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Archiver.ReceiptURLSecret, cfg.Archiver.ReceiptURLTTL)
	receiptSvc := service.NewReceiptService(receiptFiles, signer, logr)

	metrics := service.NewMetricsService()

	var archiveSvc *service.ArchiveService
	queue := jobs.NewQueue("archival", func(ctx context.Context, job jobs.Job) error {
		return archiveSvc.ProcessJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Archiver.WorkerConcurrency,
		MaxRetries: cfg.Archiver.WorkerRetries,
		Logger:     logr,
	})
	archiveSvc = service.NewArchiveService(entryRepo, mediaRepo, trans, queue, client, mediaFiles, receiptSvc, metrics, logr)

	scheduler := service.NewSchedulerService(mediaRepo, entryRepo, queue, receiptSvc, metrics, logr, service.SchedulerConfig{
		Interval:   cfg.Archiver.SweepInterval,
		RetryGrace: cfg.Archiver.RetryGrace,
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue.Start(rootCtx)
	defer queue.Stop()
	scheduler.Start(rootCtx)
	defer scheduler.Stop()
	archiveSvc.RecoverPending(rootCtx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	archiveHandler := handler.NewArchiveHandler(archiveSvc, receiptSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/receipts/download", archiveHandler.DownloadReceipt)

	protected := api.Group("")
	protected.Use(middleware.JWT(cfg.JWT.Secret))
	protected.POST("/entries/:id/archive/validate", archiveHandler.Validate)
	protected.POST("/entries/:id/archive", archiveHandler.RequestArchive)
	protected.GET("/entries/:id/archive/status", archiveHandler.Status)
	protected.GET("/entries/:id/archive/receipt", archiveHandler.Receipt)
	protected.POST("/media/:id/archive/retry", archiveHandler.Retry)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
