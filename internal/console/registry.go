package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mobilsoft/backoffice/internal/form"
	"github.com/mobilsoft/backoffice/internal/listview"
	"github.com/mobilsoft/backoffice/internal/shared"
)

// ErrSessionNotFound is returned for unknown or expired instance ids.
var ErrSessionNotFound = errors.New("console: session not found")

// Kind distinguishes list views from forms.
type Kind string

const (
	KindView Kind = "view"
	KindForm Kind = "form"
)

// SessionObserver is told when instances are opened and closed.
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

// Session is one live list view or form together with its notification inbox.
type Session struct {
	ID     string
	Kind   Kind
	Module string
	View   *listview.View
	Form   *form.Form
	Inbox  *shared.Inbox
	// Parent is the list view a form returns to.
	Parent string

	lastSeen time.Time
}

func (s *Session) close() {
	if s.View != nil {
		s.View.Close()
	}
	if s.Form != nil {
		s.Form.Close()
	}
}

// Registry keeps sessions by id and closes the ones left idle.
type Registry struct {
	clock    shared.Clock
	ttl      time.Duration
	logger   *slog.Logger
	observer SessionObserver

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry constructs a registry. A ttl of zero disables idle expiry.
func NewRegistry(clock shared.Clock, ttl time.Duration, logger *slog.Logger, observer SessionObserver) *Registry {
	if clock == nil {
		clock = shared.RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clock:    clock,
		ttl:      ttl,
		logger:   logger,
		observer: observer,
		sessions: make(map[string]*Session),
	}
}

// Add registers s under a fresh id and returns it.
func (r *Registry) Add(s *Session) string {
	s.ID = uuid.NewString()
	r.mu.Lock()
	s.lastSeen = r.clock.Now()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	if r.observer != nil {
		r.observer.SessionOpened()
	}
	return s.ID
}

// Get returns the session id of kind and marks it as used.
func (r *Registry) Get(id string, kind Kind) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Kind != kind {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = r.clock.Now()
	return s, nil
}

// Remove closes and forgets the session id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.closeSession(s)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes the sessions idle for longer than the ttl and returns how many
// were closed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.ttl)
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		r.logger.Debug("closing idle session", slog.String("id", s.ID), slog.String("kind", string(s.Kind)), slog.String("module", s.Module))
		r.closeSession(s)
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = r.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("expired idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Close tears every session down.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		r.closeSession(s)
	}
}

func (r *Registry) closeSession(s *Session) {
	s.close()
	if r.observer != nil {
		r.observer.SessionClosed()
	}
}
