// Package listview implements the paginated list-search-filter controller shared
// by every module. A View owns its query state and last result; loads are tagged
// with a sequence number so only the most recent one is ever applied.
package listview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/shared"
)

// ErrUnknownRefinement is returned for filter or type ids the module does not define.
var ErrUnknownRefinement = errors.New("listview: unknown filter or type")

// QueryState is the part of the view state that drives a load.
type QueryState struct {
	Search string `json:"search"`
	Filter string `json:"filter"`
	Type   string `json:"type,omitempty"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// ListResult is one loaded page. It is replaced wholesale on every load.
type ListResult struct {
	Items []entity.Record
	Total int
}

// LoadObserver is told about every finished load.
type LoadObserver interface {
	ListLoaded(module string, err error)
}

// Options configures a View. Store is required.
type Options struct {
	Store      recordstore.Store
	Logger     *slog.Logger
	Notifier   shared.Notifier
	Clock      shared.Clock
	Formatter  entity.Formatter
	Quiescence time.Duration
	Observer   LoadObserver
}

// View is one list view instance.
type View struct {
	schema   *entity.Schema
	store    recordstore.Store
	logger   *slog.Logger
	notifier shared.Notifier
	clock    shared.Clock
	format   entity.Formatter
	observer LoadObserver
	debounce *shared.Debouncer

	life     context.Context
	teardown context.CancelFunc

	mu       sync.Mutex
	search   string
	filter   string
	typ      string
	pager    *shared.Pager
	result   ListResult
	summary  map[string]int
	loading  bool
	failed   bool
	loaded   bool
	seq      uint64
	inflight context.CancelFunc
	closed   bool
}

// New creates a view over schema. Nothing is loaded until Load is called.
func New(schema *entity.Schema, opts Options) *View {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = shared.RealClock()
	}
	quiescence := opts.Quiescence
	if quiescence <= 0 {
		quiescence = entity.SearchQuiescence
	}
	format := opts.Formatter
	if opts.Clock != nil {
		format = format.WithClock(clock.Now)
	}
	life, teardown := context.WithCancel(context.Background())
	return &View{
		schema:   schema,
		store:    opts.Store,
		logger:   logger.With(slog.String("module", schema.Module)),
		notifier: opts.Notifier,
		clock:    clock,
		format:   format,
		observer: opts.Observer,
		debounce: shared.NewDebouncer(clock, quiescence),
		life:     life,
		teardown: teardown,
		filter:   schema.Query.DefaultFilter,
		typ:      schema.Query.DefaultType,
		pager:    shared.NewPager(schema.Limit),
	}
}

// Schema returns the module schema of the view.
func (v *View) Schema() *entity.Schema { return v.schema }

// State returns the current query state.
func (v *View) State() QueryState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() QueryState {
	return QueryState{
		Search: v.search,
		Filter: v.filter,
		Type:   v.typ,
		Offset: v.pager.Offset(),
		Limit:  v.pager.Limit(),
	}
}

// Result returns the last applied result.
func (v *View) Result() ListResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result
}

// Failed reports whether the last load failed.
func (v *View) Failed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failed
}

// Pagination returns a snapshot of the pagination metadata.
func (v *View) Pagination() shared.Pagination {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pager.Pagination()
}

// Preset sets the query of a view that has not loaded yet. Unknown refinements
// keep the module defaults.
func (v *View) Preset(q QueryState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.search = q.Search
	if q.Type != "" && v.schema.Query.HasType(q.Type) {
		v.typ = q.Type
	}
	if q.Filter != "" && v.schema.Query.HasFilter(q.Filter) {
		v.filter = q.Filter
	}
	v.pager.Reset()
}

// Load reloads the current page.
func (v *View) Load(ctx context.Context) error {
	v.debounce.Cancel()
	return v.load(ctx)
}

// Search records text immediately and reloads from the first page once the
// quiescence window has passed without further input.
func (v *View) Search(text string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrClosed
	}
	v.search = text
	v.pager.Reset()
	v.mu.Unlock()

	v.debounce.Trigger(func() {
		if err := v.load(v.life); err != nil && !errors.Is(err, shared.ErrClosed) {
			v.logger.Debug("debounced search load failed", slog.Any("error", err))
		}
	})
	return nil
}

// SearchNow records text and reloads without waiting.
func (v *View) SearchNow(ctx context.Context, text string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrClosed
	}
	v.search = text
	v.pager.Reset()
	v.mu.Unlock()
	return v.Load(ctx)
}

// SetFilter switches the categorical filter and reloads from the first page.
func (v *View) SetFilter(ctx context.Context, id string) error {
	if !v.schema.Query.HasFilter(id) {
		return fmt.Errorf("%w: %q", ErrUnknownRefinement, id)
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrClosed
	}
	v.filter = id
	v.pager.Reset()
	v.mu.Unlock()
	return v.Load(ctx)
}

// SetType switches the record type, resets the filter to the module default and
// reloads from the first page.
func (v *View) SetType(ctx context.Context, id string) error {
	if !v.schema.Query.HasType(id) {
		return fmt.Errorf("%w: %q", ErrUnknownRefinement, id)
	}
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrClosed
	}
	v.typ = id
	v.filter = v.schema.Query.DefaultFilter
	v.pager.Reset()
	v.mu.Unlock()
	return v.Load(ctx)
}

// Next moves one page forward. On the last page it does nothing.
func (v *View) Next(ctx context.Context) error {
	return v.page(ctx, (*shared.Pager).Next)
}

// Prev moves one page back. On the first page it does nothing.
func (v *View) Prev(ctx context.Context) error {
	return v.page(ctx, (*shared.Pager).Prev)
}

func (v *View) page(ctx context.Context, move func(*shared.Pager) bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return shared.ErrClosed
	}
	moved := move(v.pager)
	v.mu.Unlock()
	if !moved {
		return nil
	}
	return v.Load(ctx)
}

// Close tears the view down: pending searches never fire and in-flight loads
// are cancelled and never applied.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.debounce.Stop()
	if v.inflight != nil {
		v.inflight()
		v.inflight = nil
	}
	v.teardown()
}

// Closed reports whether Close was called.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

type ticket struct {
	seq   uint64
	state QueryState
	ctx   context.Context
	done  context.CancelFunc
}

// begin tags a new load and cancels the one it supersedes.
func (v *View) begin(ctx context.Context) (ticket, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ticket{}, shared.ErrClosed
	}
	if v.inflight != nil {
		v.inflight()
	}
	v.seq++
	lctx, cancel := context.WithCancel(v.life)
	stop := context.AfterFunc(ctx, cancel)
	done := func() {
		stop()
		cancel()
	}
	v.inflight = done
	v.loading = true
	return ticket{seq: v.seq, state: v.stateLocked(), ctx: recordstore.WithCallContext(lctx, v.schema.Context), done: done}, nil
}

// currentLocked reports whether t is still the latest load of a live view.
func (v *View) currentLocked(t ticket) bool {
	return !v.closed && t.seq == v.seq
}

func (v *View) load(ctx context.Context) error {
	t, err := v.begin(ctx)
	if err != nil {
		return err
	}
	defer t.done()

	where := query.Build(v.schema.Query, query.Input{
		Search: t.state.Search,
		Filter: t.state.Filter,
		Type:   t.state.Type,
	}, v.format.Now())

	total, rows, err := v.fetchPage(t.ctx, where, t.state.Offset, true)
	if err == nil {
		v.mu.Lock()
		if !v.currentLocked(t) {
			v.mu.Unlock()
			return nil
		}
		clamped := v.pager.SetTotal(total)
		offset := v.pager.Offset()
		v.mu.Unlock()
		if clamped {
			_, rows, err = v.fetchPage(t.ctx, where, offset, false)
		}
	}

	var items []entity.Record
	if err == nil {
		items, err = entity.DecodeAll(v.schema.Fields, rows)
		if err != nil {
			err = recordstore.Wrap("fetch", v.schema.Model, err)
		}
	}

	var summary map[string]int
	if err == nil && v.schema.Summary != nil {
		summary = v.loadSummary(t.ctx, total)
	}

	v.mu.Lock()
	if !v.currentLocked(t) {
		v.mu.Unlock()
		v.logger.Debug("discarded stale list response", slog.Uint64("seq", t.seq))
		return nil
	}
	v.loading = false
	v.inflight = nil
	if err != nil && t.ctx.Err() != nil {
		// The caller went away mid-load. The previous result and error flag stay.
		v.mu.Unlock()
		v.logger.Debug("list load abandoned by caller", slog.Uint64("seq", t.seq), slog.Any("error", err))
		return err
	}
	if err != nil {
		v.failed = true
		v.mu.Unlock()
		v.fail(err)
		return err
	}
	v.result = ListResult{Items: items, Total: total}
	if summary != nil {
		v.summary = summary
	}
	v.failed = false
	v.loaded = true
	v.mu.Unlock()

	if v.observer != nil {
		v.observer.ListLoaded(v.schema.Module, nil)
	}
	return nil
}

// fetchPage runs the count and the bounded fetch concurrently. When count is
// false only the fetch is issued.
func (v *View) fetchPage(ctx context.Context, where query.Expr, offset int, count bool) (int, []map[string]any, error) {
	var (
		total int
		rows  []map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	if count {
		g.Go(func() error {
			n, err := v.store.Count(gctx, v.schema.Model, where)
			total = n
			return err
		})
	}
	g.Go(func() error {
		r, err := v.store.Fetch(gctx, v.schema.Model, where, v.schema.FieldNames(), recordstore.Options{
			Limit:  v.schema.Limit,
			Offset: offset,
			Order:  v.schema.Order,
		})
		rows = r
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, nil, recordstore.Wrap("load", v.schema.Model, err)
	}
	return total, rows, nil
}

// loadSummary runs the extra counts of the schema. Failures are logged and
// leave the previous summary in place.
func (v *View) loadSummary(ctx context.Context, total int) map[string]int {
	counts := v.schema.Summary.Counts
	values := make([]int, len(counts))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range counts {
		g.Go(func() error {
			n, err := v.store.Count(gctx, v.schema.Model, c.Where)
			values[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		v.logger.Warn("list summary failed", slog.Any("error", err))
		return nil
	}
	out := make(map[string]int, len(counts)+1)
	if key := v.schema.Summary.TotalKey; key != "" {
		out[key] = total
	}
	for i, c := range counts {
		out[c.Key] = values[i]
	}
	return out
}

func (v *View) fail(err error) {
	if v.observer != nil {
		v.observer.ListLoaded(v.schema.Module, err)
	}
	if errors.Is(err, context.Canceled) {
		v.logger.Debug("list load cancelled", slog.Any("error", err))
		return
	}
	if v.schema.Silent || v.notifier == nil {
		v.logger.Error("list load failed", slog.Any("error", err))
		return
	}
	v.logger.Error("list load failed", slog.Any("error", err))
	v.notifier.Notify(shared.Notification{Level: shared.LevelDanger, Message: v.schema.LoadError})
}
