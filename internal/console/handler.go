// Package console exposes the list views and forms over HTTP. Every call maps
// to one user intent (search, filter, page, edit, save, cancel) on a live
// instance kept in the registry.
package console

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mobilsoft/backoffice/internal/dashboard"
	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/form"
	"github.com/mobilsoft/backoffice/internal/listview"
	"github.com/mobilsoft/backoffice/internal/platform/httpx"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/shared"
)

// Observer receives the list, form and session events.
type Observer interface {
	listview.LoadObserver
	form.SaveObserver
	SessionObserver
}

// Options configures a Handler. Store is required.
type Options struct {
	Store      recordstore.Store
	Dashboard  *dashboard.Service
	Logger     *slog.Logger
	Clock      shared.Clock
	Formatter  entity.Formatter
	Quiescence time.Duration
	IdleTTL    time.Duration
	Observer   Observer
}

// Handler serves the console API.
type Handler struct {
	store      recordstore.Store
	dashboard  *dashboard.Service
	logger     *slog.Logger
	clock      shared.Clock
	format     entity.Formatter
	quiescence time.Duration
	observer   Observer
	sessions   *Registry
}

// NewHandler constructs the console handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = shared.RealClock()
	}
	var sessionObserver SessionObserver
	if opts.Observer != nil {
		sessionObserver = opts.Observer
	}
	return &Handler{
		store:      opts.Store,
		dashboard:  opts.Dashboard,
		logger:     logger,
		clock:      clock,
		format:     opts.Formatter,
		quiescence: opts.Quiescence,
		observer:   opts.Observer,
		sessions:   NewRegistry(clock, opts.IdleTTL, logger, sessionObserver),
	}
}

// Sessions exposes the instance registry.
func (h *Handler) Sessions() *Registry { return h.sessions }

// Close tears every live instance down.
func (h *Handler) Close() { h.sessions.Close() }

// MountRoutes attaches the console routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/modules", h.handleModules)
	r.Post("/modules/{module}/views", h.handleOpenView)
	r.Post("/modules/{module}/forms", h.handleOpenForm)
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/options/{name}", h.handleOptions)

	r.Route("/views/{id}", func(r chi.Router) {
		r.Get("/", h.handleRenderView)
		r.Delete("/", h.handleCloseView)
		r.Post("/search", h.handleSearch)
		r.Post("/filter", h.handleFilter)
		r.Post("/type", h.handleType)
		r.Post("/page", h.handlePage)
		r.Post("/reload", h.handleReload)
	})

	r.Route("/forms/{id}", func(r chi.Router) {
		r.Get("/", h.handleFormState)
		r.Patch("/", h.handleFormSet)
		r.Delete("/", h.handleFormCancel)
		r.Post("/lookup/{field}", h.handleLookup)
		r.Post("/lookup/{field}/select", h.handleSelect)
		r.Post("/save", h.handleSave)
	})
}

type moduleInfo struct {
	Module        string            `json:"module"`
	Title         string            `json:"title"`
	Filters       []listview.Choice `json:"filters"`
	Types         []listview.Choice `json:"types,omitempty"`
	DefaultFilter string            `json:"default_filter"`
	DefaultType   string            `json:"default_type,omitempty"`
	HasForm       bool              `json:"has_form"`
}

func (h *Handler) handleModules(w http.ResponseWriter, r *http.Request) {
	schemas := entity.Modules()
	out := make([]moduleInfo, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, moduleInfo{
			Module:        s.Module,
			Title:         s.Title,
			Filters:       listview.Choices(s.Query.Filters, s.Query.DefaultFilter),
			Types:         listview.Choices(s.Query.Types, s.Query.DefaultType),
			DefaultFilter: s.Query.DefaultFilter,
			DefaultType:   s.Query.DefaultType,
			HasForm:       s.Form != nil,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type dashboardResponse struct {
	dashboard.Stats
	Error bool `json:"error"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil {
		httpx.RespondError(w, fmt.Errorf("%w: dashboard disabled", httpx.ErrNotFound))
		return
	}
	stats, err := h.dashboard.Get(r.Context())
	if err != nil {
		h.logger.Warn("dashboard unavailable", slog.Any("error", err))
		httpx.JSON(w, http.StatusOK, dashboardResponse{Stats: dashboard.Empty(h.format), Error: true})
		return
	}
	httpx.JSON(w, http.StatusOK, dashboardResponse{Stats: stats})
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	spec, ok := entity.LookupOption(chi.URLParam(r, "name"))
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: option list %q", httpx.ErrNotFound, chi.URLParam(r, "name")))
		return
	}
	httpx.JSON(w, http.StatusOK, form.LoadOptions(r.Context(), h.store, spec, h.logger))
}

func (h *Handler) schema(r *http.Request) (*entity.Schema, error) {
	module := chi.URLParam(r, "module")
	s, ok := entity.Lookup(module)
	if !ok {
		return nil, fmt.Errorf("%w: module %q", httpx.ErrNotFound, module)
	}
	return s, nil
}

// sessionError maps controller errors to the problem the client sees.
func sessionError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, shared.ErrClosed):
		return fmt.Errorf("%w: %v", httpx.ErrGone, err)
	case errors.Is(err, listview.ErrUnknownRefinement),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrInvalidValue),
		errors.Is(err, form.ErrValidation):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, form.ErrBusy):
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, recordstore.ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	}
	var te *recordstore.TransportError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %v", httpx.ErrUpstream, err)
	}
	return err
}

