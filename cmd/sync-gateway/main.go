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
	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/handler"
	"github.com/uniqn-app/staffsync/internal/middleware"
	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/repository"
	"github.com/uniqn-app/staffsync/internal/service"
	"github.com/uniqn-app/staffsync/internal/source"
	syncengine "github.com/uniqn-app/staffsync/internal/sync"
	"github.com/uniqn-app/staffsync/pkg/cache"
	"github.com/uniqn-app/staffsync/pkg/config"
	"github.com/uniqn-app/staffsync/pkg/database"
	"github.com/uniqn-app/staffsync/pkg/logger"
	corsmiddleware "github.com/uniqn-app/staffsync/pkg/middleware/cors"
	reqidmiddleware "github.com/uniqn-app/staffsync/pkg/middleware/requestid"
	"github.com/uniqn-app/staffsync/pkg/storage"
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, count caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cacheClient := redisClient
	if !cfg.Engine.CacheEnabled {
		cacheClient = nil
	}
	cacheRepo := repository.NewCacheRepository(cacheClient, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	src := source.NewPostgres(db, database.DSN(cfg.Database), cfg.Sync.EventBuffer, logr)

	syncCfg := syncengine.Config{
		ResubscribeBackoff: cfg.Sync.ResubscribeBackoff,
	}
	registry := service.NewEngineRegistry(ctx, func() *service.EngineService {
		return service.NewEngineService(src, syncCfg, logr, metrics)
	}, 0, logr)
	defer registry.Close()

	var notifier service.Notifier
	if cfg.Notifier.Enabled {
		notifier = &logNotifier{logger: logr}
	}
	announcements := service.NewAnnouncementService(
		src, src, cacheRepo, notifier, cfg.Engine, cfg.Notifier, logr, metrics,
	)

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Export.URLTTL)
	exports := service.NewExportService(exportStore, signer, logr)

	announcements.Start(ctx)
	defer announcements.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, handler.Deps{
		Config:        cfg,
		Registry:      registry,
		Announcements: announcements,
		Exports:       exports,
		Metrics:       metrics,
		Ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.PingContext(pingCtx)
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}

// logNotifier stands in for the push transport. Deployments with a real
// delivery channel replace this with their own Notifier.
type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) NotifyAnnouncement(_ context.Context, a models.SystemAnnouncement) error {
	n.logger.Info("announcement notification",
		zap.String("announcement_id", a.ID),
		zap.String("title", a.Title),
		zap.String("priority", string(a.Priority)))
	return nil
}
