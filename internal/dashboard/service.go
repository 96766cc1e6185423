// Package dashboard computes the home screen figures: company name, today's
// confirmed sales, pending invoices, stock alerts and the active point of sale.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// POSConfig is the point of sale the dashboard links to.
type POSConfig struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SessionID int64  `json:"session_id,omitempty"`
}

// Stats is one computed dashboard.
type Stats struct {
	CompanyName     string     `json:"company_name"`
	TodaySales      float64    `json:"today_sales"`
	TodaySalesText  string     `json:"today_sales_text"`
	PendingInvoices int        `json:"pending_invoices"`
	StockAlerts     int        `json:"stock_alerts"`
	POS             *POSConfig `json:"pos,omitempty"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// Empty returns the figures shown before anything could be loaded.
func Empty(f entity.Formatter) Stats {
	return Stats{TodaySalesText: f.Amount(0)}
}

var (
	companyFields = []entity.Field{entity.F("name", entity.KindString)}
	saleFields    = []entity.Field{entity.F("amount_total", entity.KindFloat)}
	posFields     = []entity.Field{
		entity.F("name", entity.KindString),
		entity.F("current_session_id", entity.KindMany2One),
	}
)

// PendingInvoices matches posted customer and supplier invoices that are not
// fully paid.
var PendingInvoices = query.And(
	query.Cond("move_type", query.OpIn, []string{"out_invoice", "in_invoice"}),
	query.Cond("payment_state", query.OpIn, []string{"not_paid", "partial"}),
	query.Cond("state", query.OpEq, "posted"),
)

// StockAlerts matches goods with nothing on hand.
var StockAlerts = query.And(
	query.Cond("qty_available", query.OpLte, 0),
	query.Cond("type", query.OpEq, "consu"),
)

// ConfirmedSalesSince matches confirmed or locked orders placed since the
// start of the day of now.
func ConfirmedSalesSince(now time.Time) query.Expr {
	return query.And(
		query.Cond("date_order", query.OpGte, query.DayStart(now)),
		query.Cond("state", query.OpIn, []string{"sale", "done"}),
	)
}

// Options configures a Service. Store is required.
type Options struct {
	Store     recordstore.Store
	Cache     *Cache
	Logger    *slog.Logger
	Formatter entity.Formatter
	CompanyID int64
}

// Service loads dashboards, through the cache when one is configured.
type Service struct {
	store     recordstore.Store
	cache     *Cache
	logger    *slog.Logger
	format    entity.Formatter
	companyID int64
}

// NewService wires a Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     opts.Store,
		cache:     opts.Cache,
		logger:    logger.With(slog.String("component", "dashboard")),
		format:    opts.Formatter,
		companyID: opts.CompanyID,
	}
}

// Get returns today's dashboard. Cached figures are reused until the store
// reports a write or the entry expires.
func (s *Service) Get(ctx context.Context) (Stats, error) {
	now := s.format.Now()
	key, err := s.cache.BuildKey(ctx, companyToken(s.companyID), dayToken(now))
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
		return s.Compute(ctx)
	}
	var stats Stats
	err = s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (any, error) {
		return s.Compute(ctx)
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Warm recomputes today's dashboard and stores it in the cache.
func (s *Service) Warm(ctx context.Context) (Stats, error) {
	if err := s.cache.Bump(ctx); err != nil {
		return Stats{}, fmt.Errorf("dashboard: bump: %w", err)
	}
	return s.Get(ctx)
}

// Compute loads every figure concurrently. The first failure cancels the rest.
func (s *Service) Compute(ctx context.Context) (Stats, error) {
	now := s.format.Now()
	stats := Stats{GeneratedAt: now.UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name, err := s.companyName(gctx)
		stats.CompanyName = name
		return err
	})
	g.Go(func() error {
		total, err := s.salesTotal(gctx, now)
		stats.TodaySales = total
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(gctx, "account.move", PendingInvoices)
		stats.PendingInvoices = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Count(gctx, "product.product", StockAlerts)
		stats.StockAlerts = n
		return err
	})
	g.Go(func() error {
		pos, err := s.activePOS(gctx)
		stats.POS = pos
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard load failed", slog.Any("error", err))
		return Stats{}, err
	}
	stats.TodaySalesText = s.format.Amount(stats.TodaySales)
	return stats, nil
}

func (s *Service) companyName(ctx context.Context) (string, error) {
	if s.companyID == 0 {
		return "", nil
	}
	rows, err := s.store.ReadByID(ctx, "res.company", []int64{s.companyID}, entity.Names(companyFields))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	rec, err := entity.Decode(companyFields, rows[0])
	if err != nil {
		return "", recordstore.Wrap("read", "res.company", err)
	}
	return rec.String("name"), nil
}

func (s *Service) salesTotal(ctx context.Context, now time.Time) (float64, error) {
	rows, err := s.store.Fetch(ctx, "sale.order", ConfirmedSalesSince(now), entity.Names(saleFields), recordstore.Options{})
	if err != nil {
		return 0, err
	}
	recs, err := entity.DecodeAll(saleFields, rows)
	if err != nil {
		return 0, recordstore.Wrap("fetch", "sale.order", err)
	}
	var total float64
	for _, rec := range recs {
		total += rec.Float("amount_total")
	}
	return total, nil
}

func (s *Service) activePOS(ctx context.Context) (*POSConfig, error) {
	where := query.And(query.Cond("active", query.OpEq, true))
	rows, err := s.store.Fetch(ctx, "pos.config", where, entity.Names(posFields), recordstore.Options{Limit: 1, Order: "id asc"})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec, err := entity.Decode(posFields, rows[0])
	if err != nil {
		return nil, recordstore.Wrap("fetch", "pos.config", err)
	}
	return &POSConfig{ID: rec.ID(), Name: rec.String("name"), SessionID: rec.Ref("current_session_id").ID}, nil
}
