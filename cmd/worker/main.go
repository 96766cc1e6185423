package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mobilsoft/backoffice/internal/app"
	"github.com/mobilsoft/backoffice/internal/dashboard"
	jobmetrics "github.com/mobilsoft/backoffice/internal/jobs"
	"github.com/mobilsoft/backoffice/internal/observability"
	"github.com/mobilsoft/backoffice/internal/platform/cache"
	"github.com/mobilsoft/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	loc, _ := cfg.Location()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store, release, err := app.BuildStore(ctx, app.StoreParams{Config: cfg, Redis: redisClient, Metrics: metrics, Logger: logger})
	if err != nil {
		logger.Error("open record store", slog.Any("error", err))
		os.Exit(1)
	}
	defer release()

	dash := dashboard.NewService(dashboard.Options{
		Store:     store,
		Cache:     dashboard.NewCache(redisClient, cfg.CacheTTL),
		Logger:    logger,
		Formatter: format,
		CompanyID: cfg.CompanyID,
	})
	warmupJob := jobs.NewDashboardWarmupJob(dash, logger, jobmetrics.NewMetrics(prometheus.DefaultRegisterer))

	warmupTask, err := jobs.NewDashboardWarmupTask(jobs.DashboardWarmupPayload{Reason: "cron"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.DashboardCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.DashboardCron, Task: warmupTask})
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
