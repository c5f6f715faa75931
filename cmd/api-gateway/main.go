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
	"go.uber.org/zap"

	"github.com/learnledger/editor-api/internal/handler"
	"github.com/learnledger/editor-api/internal/ledger"
	"github.com/learnledger/editor-api/internal/media"
	"github.com/learnledger/editor-api/internal/middleware"
	"github.com/learnledger/editor-api/internal/repository"
	"github.com/learnledger/editor-api/internal/service"
	rediscache "github.com/learnledger/editor-api/pkg/cache"
	"github.com/learnledger/editor-api/pkg/config"
	"github.com/learnledger/editor-api/pkg/database"
	"github.com/learnledger/editor-api/pkg/logger"
	corsmiddleware "github.com/learnledger/editor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/learnledger/editor-api/pkg/middleware/requestid"
)

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

	metrics := service.NewMetricsService()

	// The binder dials the gateway once per (account, network) and hands the
	// same client to everyone.
	binder := ledger.NewBinder(func(ctx context.Context, key ledger.BindingKey) (ledger.Client, error) {
		return ledger.NewGatewayClient(cfg.Ledger, logr), nil
	})
	ledgerClient, err := binder.Ensure(ctx, ledger.BindingKey{
		Account: cfg.Ledger.Account,
		Network: cfg.Ledger.Network,
	})
	if err != nil {
		logr.Sugar().Fatalw("ledger binding failed", "error", err)
	}
	courseQuery := ledger.NewCourseQuery(ledgerClient, cfg.Ledger.CourseAddress)

	// Redis backs the read cache when reachable, with an in-process fallback.
	var cacheRepo service.CacheRepository = repository.NewMemoryCache()
	if cfg.Cache.Enabled {
		if redisClient, err := rediscache.NewRedis(cfg.Redis); err != nil {
			logr.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled)

	var draftRepo service.DraftPersistence
	if cfg.Drafts.Persist {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("database connection failed", "error", err)
		}
		defer db.Close() //nolint:errcheck
		draftRepo = repository.NewDraftRepository(db)
	}
	draftSvc := service.NewDraftService(draftRepo, logr)

	staging, err := media.NewStagingStore("")
	if err != nil {
		logr.Sugar().Fatalw("media staging init failed", "error", err)
	}
	uploadSvc := service.NewUploadService(
		media.NewClient(cfg.Media, logr),
		metrics,
		service.UploadServiceConfig{PollInterval: cfg.Media.PollInterval, PollAttempts: cfg.Media.PollAttempts},
		logr,
	)

	sequencer := service.NewSequencerService(ledgerClient, metrics, cfg.Ledger, logr)
	registry := service.NewCommitRegistry(time.Hour)
	commitSvc := service.NewCommitService(
		draftSvc, uploadSvc, sequencer, cacheSvc, staging,
		registry, metrics, cfg.Limits, cfg.Commits, logr,
	)
	commitSvc.Start(ctx)
	defer commitSvc.Stop()

	courseSvc := service.NewCourseService(courseQuery, cacheSvc, logr)
	commitSvc.SetCacheWarmer(func(ctx context.Context, courseID int64) {
		courseSvc.WarmCourse(ctx, courseID, 0)
	})
	tokenSvc := service.NewTokenService(cfg.JWT)
	validate := validator.New()

	courseHandler := handler.NewCourseHandler(courseSvc)
	draftHandler := handler.NewDraftHandler(draftSvc, courseSvc, staging, validate)
	commitHandler := handler.NewCommitHandler(commitSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.GET("/courses/:id", courseHandler.Get)

	auth := api.Group("", middleware.JWT(tokenSvc))
	auth.POST("/courses/:id/draft", draftHandler.Open)
	auth.GET("/courses/:id/draft", draftHandler.Get)
	auth.DELETE("/courses/:id/draft", draftHandler.Discard)
	auth.PATCH("/courses/:id/draft/metadata", draftHandler.SetMetadata)
	auth.POST("/courses/:id/draft/sections", draftHandler.AddSection)
	auth.PUT("/courses/:id/draft/sections/:sectionId", draftHandler.UpdateSection)
	auth.DELETE("/courses/:id/draft/sections/:sectionId", draftHandler.RemoveSection)
	auth.POST("/courses/:id/draft/sections/:sectionId/move", draftHandler.Move)
	auth.PUT("/courses/:id/draft/sections/:sectionId/media", draftHandler.StageMedia)
	auth.PUT("/courses/:id/draft/order", draftHandler.SetOrder)
	auth.POST("/courses/:id/commit", commitHandler.Submit)
	auth.GET("/commits/:id", commitHandler.Status)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}
