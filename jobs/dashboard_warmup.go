package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mobilsoft/backoffice/internal/dashboard"
	jobmetrics "github.com/mobilsoft/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Warmer recomputes dashboard figures and stores them in the cache.
type Warmer interface {
	Warm(ctx context.Context) (dashboard.Stats, error)
}

// DashboardWarmupJob refreshes the cached dashboard so the first page view of
// the day does not pay for five backend queries.
type DashboardWarmupJob struct {
	Dashboard Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(svc Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{Dashboard: svc, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.Reason != "" {
		logger = logger.With(slog.String("reason", payload.Reason))
	}
	start := time.Now()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	stats, err := j.Dashboard.Warm(ctx)
	if err != nil {
		logger.Error("dashboard warmup failed", slog.Any("error", err))
		return err
	}

	m := j.metrics()
	m.SetDashboardStat("today_sales", stats.TodaySales)
	m.SetDashboardStat("pending_invoices", float64(stats.PendingInvoices))
	m.SetDashboardStat("stock_alerts", float64(stats.StockAlerts))

	logger.Info("completed dashboard warmup",
		slog.Float64("today_sales", stats.TodaySales),
		slog.Int("pending_invoices", stats.PendingInvoices),
		slog.Int("stock_alerts", stats.StockAlerts),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
