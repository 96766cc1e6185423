package console

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobilsoft/backoffice/internal/listview"
	"github.com/mobilsoft/backoffice/internal/platform/httpx"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/shared"
)

type viewResponse struct {
	ID            string                `json:"id"`
	View          listview.Render       `json:"view"`
	Notifications []shared.Notification `json:"notifications"`
}

type openViewRequest struct {
	Search string `json:"search"`
	Filter string `json:"filter"`
	Type   string `json:"type"`
}

type textRequest struct {
	Text string `json:"text"`
}

type refinementRequest struct {
	Filter string `json:"filter"`
	Type   string `json:"type"`
}

type pageRequest struct {
	Direction string `json:"direction"`
}

func (h *Handler) respondView(w http.ResponseWriter, status int, s *Session) {
	httpx.JSON(w, status, viewResponse{
		ID:            s.ID,
		View:          s.View.Render(),
		Notifications: s.Inbox.Drain(),
	})
}

// respondLoad answers a state change. Store failures are already recorded on
// the view as the error flag and a notification, so they still answer 200.
func (h *Handler) respondLoad(w http.ResponseWriter, s *Session, err error) {
	var te *recordstore.TransportError
	if err != nil && !errors.As(err, &te) {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.respondView(w, http.StatusOK, s)
}

func (h *Handler) viewOptions(inbox *shared.Inbox) listview.Options {
	var observer listview.LoadObserver
	if h.observer != nil {
		observer = h.observer
	}
	return listview.Options{
		Store:      h.store,
		Logger:     h.logger,
		Notifier:   inbox,
		Clock:      h.clock,
		Formatter:  h.format,
		Quiescence: h.quiescence,
		Observer:   observer,
	}
}

func (h *Handler) handleOpenView(w http.ResponseWriter, r *http.Request) {
	schema, err := h.schema(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req openViewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Type != "" && !schema.Query.HasType(req.Type) {
		httpx.RespondError(w, fmt.Errorf("%w: %w: %q", httpx.ErrValidation, listview.ErrUnknownRefinement, req.Type))
		return
	}
	if req.Filter != "" && !schema.Query.HasFilter(req.Filter) {
		httpx.RespondError(w, fmt.Errorf("%w: %w: %q", httpx.ErrValidation, listview.ErrUnknownRefinement, req.Filter))
		return
	}

	inbox := shared.NewInbox(0)
	view := listview.New(schema, h.viewOptions(inbox))
	view.Preset(listview.QueryState{Search: req.Search, Filter: req.Filter, Type: req.Type})
	s := &Session{Kind: KindView, Module: schema.Module, View: view, Inbox: inbox}
	h.sessions.Add(s)
	h.logger.Debug("opened list view", slog.String("id", s.ID), slog.String("module", schema.Module), slog.String("actor", shared.ActorFromContext(r.Context())))

	err = view.Load(r.Context())
	var te *recordstore.TransportError
	if err != nil && !errors.As(err, &te) {
		h.sessions.Remove(s.ID)
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.respondView(w, http.StatusCreated, s)
}

func (h *Handler) viewSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"), KindView)
	if err != nil {
		httpx.RespondError(w, sessionError(err))
		return nil, false
	}
	return s, true
}

func (h *Handler) handleRenderView(w http.ResponseWriter, r *http.Request) {
	s, ok := h.viewSession(w, r)
	if !ok {
		return
	}
	h.respondView(w, http.StatusOK, s)
}

func (h *Handler) handleCloseView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.sessions.Get(id, KindView); err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.sessions.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch records the text and answers at once; the reload follows the
// quiescence window. With ?now=1 the reload runs before answering.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.viewSession(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if r.URL.Query().Get("now") == "1" {
		h.respondLoad(w, s, s.View.SearchNow(r.Context(), req.Text))
		return
	}
	if err := s.View.Search(req.Text); err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.respondView(w, http.StatusAccepted, s)
}

func (h *Handler) handleFilter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.viewSession(w, r)
	if !ok {
		return
	}
	var req refinementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondLoad(w, s, s.View.SetFilter(r.Context(), req.Filter))
}

func (h *Handler) handleType(w http.ResponseWriter, r *http.Request) {
	s, ok := h.viewSession(w, r)
	if !ok {
		return
	}
	var req refinementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondLoad(w, s, s.View.SetType(r.Context(), req.Type))
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.viewSession(w, r)
	if !ok {
		return
	}
	var req pageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	switch req.Direction {
	case "next":
		h.respondLoad(w, s, s.View.Next(r.Context()))
	case "prev":
		h.respondLoad(w, s, s.View.Prev(r.Context()))
	default:
		httpx.RespondError(w, fmt.Errorf("%w: direction must be next or prev", httpx.ErrValidation))
	}
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.viewSession(w, r)
	if !ok {
		return
	}
	h.respondLoad(w, s, s.View.Load(r.Context()))
}
