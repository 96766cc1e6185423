package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mobilsoft/backoffice/internal/app"
	"github.com/mobilsoft/backoffice/internal/console"
	"github.com/mobilsoft/backoffice/internal/dashboard"
	"github.com/mobilsoft/backoffice/internal/observability"
	"github.com/mobilsoft/backoffice/internal/platform/cache"
	"github.com/mobilsoft/backoffice/internal/recordstore/cached"
	"github.com/mobilsoft/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	format, err := cfg.Formatter()
	if err != nil {
		logger.Error("build formatter", slog.Any("error", err))
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, running without cache and jobs", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	metrics := observability.NewMetrics()
	store, release, err := app.BuildStore(ctx, app.StoreParams{Config: cfg, Redis: redisClient, Metrics: metrics, Logger: logger})
	if err != nil {
		logger.Error("open record store", slog.Any("error", err))
		os.Exit(1)
	}
	defer release()

	var dashCache *dashboard.Cache
	if redisClient != nil {
		dashCache = dashboard.NewCache(redisClient, cfg.CacheTTL)
		if err := dashCache.ListenForInvalidation(ctx, cached.BumpChannel, logger); err != nil {
			logger.Warn("dashboard invalidation listener", slog.Any("error", err))
		}
	}
	dash := dashboard.NewService(dashboard.Options{
		Store:     store,
		Cache:     dashCache,
		Logger:    logger,
		Formatter: format,
		CompanyID: cfg.CompanyID,
	})

	consoleHandler := console.NewHandler(console.Options{
		Store:      store,
		Dashboard:  dash,
		Logger:     logger,
		Formatter:  format,
		Quiescence: cfg.SearchQuiescence,
		IdleTTL:    cfg.ViewIdleTTL,
		Observer:   metrics,
	})
	defer consoleHandler.Close()
	go consoleHandler.Sessions().Run(ctx, 0)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()
		jobClient := jobs.NewClient(redisOpts)
		defer jobClient.Close()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Console:    consoleHandler,
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
