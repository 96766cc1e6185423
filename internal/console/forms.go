package console

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/form"
	"github.com/mobilsoft/backoffice/internal/listview"
	"github.com/mobilsoft/backoffice/internal/platform/httpx"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/shared"
)

type formResponse struct {
	ID            string                `json:"id"`
	Form          form.State            `json:"form"`
	Notifications []shared.Notification `json:"notifications"`
	// Closed is set once a save completed; the client returns to Parent.
	Closed  bool             `json:"closed,omitempty"`
	SavedID int64            `json:"saved_id,omitempty"`
	Parent  *listview.Render `json:"parent,omitempty"`
}

type openFormRequest struct {
	ID     int64             `json:"id"`
	ViewID string            `json:"view_id"`
	Params map[string]string `json:"params"`
}

type setRequest struct {
	Fields map[string]any `json:"fields"`
}

type lookupRequest struct {
	Text string `json:"text"`
	Now  bool   `json:"now"`
}

type selectRequest struct {
	ID int64 `json:"id"`
}

func (h *Handler) respondForm(w http.ResponseWriter, status int, s *Session) {
	httpx.JSON(w, status, formResponse{
		ID:            s.ID,
		Form:          s.Form.State(),
		Notifications: s.Inbox.Drain(),
	})
}

func (h *Handler) handleOpenForm(w http.ResponseWriter, r *http.Request) {
	schema, err := h.schema(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if schema.Form == nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w: %s", httpx.ErrNotFound, form.ErrNoForm, schema.Module))
		return
	}
	var req openFormRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ViewID != "" {
		if _, err := h.sessions.Get(req.ViewID, KindView); err != nil {
			httpx.RespondError(w, sessionError(err))
			return
		}
	}

	var observer form.SaveObserver
	if h.observer != nil {
		observer = h.observer
	}
	s := &Session{Kind: KindForm, Module: schema.Module, Inbox: shared.NewInbox(0), Parent: req.ViewID}
	fm, err := form.New(schema, form.Options{
		Store:    h.store,
		Logger:   h.logger,
		Notifier: s.Inbox,
		Clock:    h.clock,
		Observer: observer,
		Params:   req.Params,
	})
	if err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	s.Form = fm
	h.sessions.Add(s)

	if err := fm.Open(r.Context(), req.ID); err != nil {
		h.sessions.Remove(s.ID)
		var te *recordstore.TransportError
		if errors.As(err, &te) && !errors.Is(err, recordstore.ErrNotFound) {
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Title:  "Upstream Failure",
				Status: http.StatusBadGateway,
				Extra:  s.Inbox.Drain(),
			})
			return
		}
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.logger.Debug("opened form", slog.String("id", s.ID), slog.String("module", schema.Module), slog.Int64("record", req.ID), slog.String("actor", shared.ActorFromContext(r.Context())))
	h.respondForm(w, http.StatusCreated, s)
}

func (h *Handler) formSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"), KindForm)
	if err != nil {
		httpx.RespondError(w, sessionError(err))
		return nil, false
	}
	return s, true
}

func (h *Handler) handleFormState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.formSession(w, r)
	if !ok {
		return
	}
	h.respondForm(w, http.StatusOK, s)
}

func (h *Handler) handleFormSet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.formSession(w, r)
	if !ok {
		return
	}
	var req setRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := s.Form.SetMany(req.Fields); err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.respondForm(w, http.StatusOK, s)
}

// handleFormCancel discards the form without saving.
func (h *Handler) handleFormCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.sessions.Get(id, KindForm); err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.sessions.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	s, ok := h.formSession(w, r)
	if !ok {
		return
	}
	var req lookupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	field := chi.URLParam(r, "field")
	if req.Now {
		options, err := s.Form.LookupNow(r.Context(), field, req.Text)
		if err != nil {
			httpx.RespondError(w, sessionError(err))
			return
		}
		if options == nil {
			options = []entity.Option{}
		}
		httpx.JSON(w, http.StatusOK, options)
		return
	}
	if err := s.Form.Lookup(field, req.Text); err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.respondForm(w, http.StatusAccepted, s)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.formSession(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := s.Form.Select(chi.URLParam(r, "field"), req.ID); err != nil {
		httpx.RespondError(w, sessionError(err))
		return
	}
	h.respondForm(w, http.StatusOK, s)
}

// handleSave writes the form. On success the form is closed, and its list
// view, when it has one, is reloaded and returned.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	s, ok := h.formSession(w, r)
	if !ok {
		return
	}
	id, err := s.Form.Save(r.Context())
	if err != nil {
		h.respondSaveError(w, s, err)
		return
	}

	resp := formResponse{
		ID:            s.ID,
		Form:          s.Form.State(),
		Notifications: s.Inbox.Drain(),
		Closed:        true,
		SavedID:       id,
	}
	h.sessions.Remove(s.ID)
	if parent, err := h.sessions.Get(s.Parent, KindView); err == nil {
		if err := parent.View.Load(r.Context()); err != nil {
			h.logger.Warn("parent reload failed", slog.String("view", parent.ID), slog.Any("error", err))
		}
		render := parent.View.Render()
		resp.Parent = &render
		resp.Notifications = append(resp.Notifications, parent.Inbox.Drain()...)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondSaveError(w http.ResponseWriter, s *Session, err error) {
	state := s.Form.State()
	if errors.Is(err, form.ErrValidation) {
		httpx.ValidationProblem(w, state.Errors, state)
		return
	}
	var te *recordstore.TransportError
	if errors.As(err, &te) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Upstream Failure",
			Status: http.StatusBadGateway,
			Extra:  formResponse{ID: s.ID, Form: state, Notifications: s.Inbox.Drain()},
		})
		return
	}
	httpx.RespondError(w, sessionError(err))
}

