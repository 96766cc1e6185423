package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/shared"
)

// lookup holds the debounce and the latest suggestions of one autocomplete.
type lookup struct {
	spec     entity.LookupSpec
	debounce *shared.Debouncer

	mu      sync.Mutex
	seq     uint64
	options []entity.Option
}

func newLookup(spec entity.LookupSpec, clock shared.Clock) *lookup {
	quiescence := spec.Quiescence
	if quiescence <= 0 {
		quiescence = entity.LookupQuiescence
	}
	return &lookup{spec: spec, debounce: shared.NewDebouncer(clock, quiescence)}
}

func (l *lookup) results() []entity.Option {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.Option, len(l.options))
	copy(out, l.options)
	return out
}

func (l *lookup) next() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

func (l *lookup) apply(seq uint64, options []entity.Option) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.seq {
		return false
	}
	l.options = options
	return true
}

func (l *lookup) stop() {
	l.debounce.Stop()
	l.next()
}

func (f *Form) lookup(field string) (*lookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusClosed {
		return nil, shared.ErrClosed
	}
	l, ok := f.lookups[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return l, nil
}

// Lookup schedules an autocomplete search for field. Text shorter than the
// minimum length clears the suggestions without calling the store.
func (f *Form) Lookup(field, text string) error {
	l, err := f.lookup(field)
	if err != nil {
		return err
	}
	seq := l.next()
	if short(l.spec, text) {
		l.debounce.Cancel()
		l.apply(seq, nil)
		return nil
	}
	l.debounce.Trigger(func() {
		f.runLookup(context.Background(), l, seq, text)
	})
	return nil
}

// LookupNow searches immediately and returns the suggestions.
func (f *Form) LookupNow(ctx context.Context, field, text string) ([]entity.Option, error) {
	l, err := f.lookup(field)
	if err != nil {
		return nil, err
	}
	l.debounce.Cancel()
	seq := l.next()
	if short(l.spec, text) {
		l.apply(seq, nil)
		return nil, nil
	}
	f.runLookup(ctx, l, seq, text)
	return l.results(), nil
}

// Suggestions returns the latest suggestions of field.
func (f *Form) Suggestions(field string) []entity.Option {
	l, err := f.lookup(field)
	if err != nil {
		return nil
	}
	return l.results()
}

// Select applies a suggestion: the target field gets the id and the name field
// its label.
func (f *Form) Select(field string, id int64) error {
	l, err := f.lookup(field)
	if err != nil {
		return err
	}
	var picked *entity.Option
	for _, o := range l.results() {
		if o.ID == id {
			picked = &o
			break
		}
	}
	if picked == nil {
		return fmt.Errorf("%w: %s=%d", recordstore.ErrNotFound, field, id)
	}
	values := map[string]any{l.spec.Target: picked.ID}
	if l.spec.NameField != "" {
		values[l.spec.NameField] = picked.Name
	}
	if err := f.SetMany(values); err != nil {
		return err
	}
	l.apply(l.next(), nil)
	return nil
}

// runLookup fetches suggestions. Failures are logged and leave the previous
// suggestions in place.
func (f *Form) runLookup(ctx context.Context, l *lookup, seq uint64, text string) {
	where := query.And(query.SearchClause(l.spec.SearchFields, text))
	limit := l.spec.Limit
	if limit <= 0 {
		limit = entity.LookupLimit
	}
	rows, err := f.store.Fetch(ctx, l.spec.Model, where, entity.Names(l.spec.Fields), recordstore.Options{Limit: limit, Order: "name asc"})
	if err != nil {
		f.logger.Warn("lookup failed", slog.String("model", l.spec.Model), slog.Any("error", err))
		return
	}
	recs, err := entity.DecodeAll(l.spec.Fields, rows)
	if err != nil {
		f.logger.Warn("lookup decode failed", slog.String("model", l.spec.Model), slog.Any("error", err))
		return
	}
	options := make([]entity.Option, 0, len(recs))
	for _, rec := range recs {
		options = append(options, entity.Option{ID: rec.ID(), Name: rec.String("name")})
	}
	if !l.apply(seq, options) {
		f.logger.Debug("discarded stale lookup", slog.String("model", l.spec.Model))
	}
}

func short(spec entity.LookupSpec, text string) bool {
	minLen := spec.MinLength
	if minLen <= 0 {
		minLen = entity.LookupMinLength
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) < minLen
}
