package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// InstrumentedStore counts, times and logs every call of the wrapped store.
type InstrumentedStore struct {
	next    recordstore.Store
	metrics *Metrics
	logger  *slog.Logger
}

var _ recordstore.Store = (*InstrumentedStore)(nil)

// InstrumentStore wraps next. Either metrics or logger may be nil.
func InstrumentStore(next recordstore.Store, metrics *Metrics, logger *slog.Logger) *InstrumentedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentedStore{next: next, metrics: metrics, logger: logger}
}

func (s *InstrumentedStore) done(ctx context.Context, op, model string, start time.Time, err error) {
	s.metrics.observeStore(op, model, start, err)
	if err != nil {
		s.logger.WarnContext(ctx, "record store call failed",
			slog.String("op", op),
			slog.String("model", model),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}
	s.logger.DebugContext(ctx, "record store call",
		slog.String("op", op),
		slog.String("model", model),
		slog.Duration("elapsed", time.Since(start)),
	)
}

func (s *InstrumentedStore) Count(ctx context.Context, model string, where query.Expr) (int, error) {
	start := time.Now()
	n, err := s.next.Count(ctx, model, where)
	s.done(ctx, "count", model, start, err)
	return n, err
}

func (s *InstrumentedStore) Fetch(ctx context.Context, model string, where query.Expr, fields []string, opts recordstore.Options) ([]map[string]any, error) {
	start := time.Now()
	rows, err := s.next.Fetch(ctx, model, where, fields, opts)
	s.done(ctx, "fetch", model, start, err)
	return rows, err
}

func (s *InstrumentedStore) ReadByID(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	start := time.Now()
	rows, err := s.next.ReadByID(ctx, model, ids, fields)
	s.done(ctx, "read", model, start, err)
	return rows, err
}

func (s *InstrumentedStore) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	start := time.Now()
	id, err := s.next.Create(ctx, model, values)
	s.done(ctx, "create", model, start, err)
	return id, err
}

func (s *InstrumentedStore) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	start := time.Now()
	err := s.next.Update(ctx, model, ids, values)
	s.done(ctx, "update", model, start, err)
	return err
}
