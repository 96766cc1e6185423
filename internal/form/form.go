// Package form implements the record form controller: it loads one record, keeps
// the edited view values, validates them locally and writes them back.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/shared"
)

var (
	// ErrNoForm is returned for modules without a form.
	ErrNoForm = errors.New("form: module has no form")
	// ErrValidation is returned by Save when local validation fails.
	ErrValidation = errors.New("form: validation failed")
	// ErrBusy is returned while the form is loading or saving.
	ErrBusy = errors.New("form: busy")
	// ErrUnknownField is returned for fields the form does not define.
	ErrUnknownField = errors.New("form: unknown field")
	// ErrInvalidValue is returned when a value does not convert to its field.
	ErrInvalidValue = errors.New("form: invalid value")
)

const invalidValue = "Geçersiz değer."

// Status is the lifecycle state of a form.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusSaving  Status = "saving"
	StatusClosed  Status = "closed"
)

// State is the display projection of a form.
type State struct {
	Module      string                    `json:"module"`
	ID          int64                     `json:"id,omitempty"`
	IsNew       bool                      `json:"is_new"`
	Status      Status                    `json:"status"`
	Fields      map[string]any            `json:"fields"`
	Errors      map[string]string         `json:"errors"`
	Total       *float64                  `json:"total,omitempty"`
	Suggestions map[string][]entity.Option `json:"suggestions,omitempty"`
}

// SaveObserver is told about every save that reached the backend.
type SaveObserver interface {
	FormSaved(module string, err error)
}

// Options configures a Form. Store is required.
type Options struct {
	Store     recordstore.Store
	Logger    *slog.Logger
	Notifier  shared.Notifier
	Clock     shared.Clock
	Validator *validator.Validate
	Observer  SaveObserver
	// Params carries creation hints such as the invoice move type.
	Params map[string]string
	// OnSaved runs after a successful create or update.
	OnSaved func(id int64)
}

// Form is one form instance.
type Form struct {
	schema   *entity.Schema
	spec     *entity.FormSpec
	store    recordstore.Store
	logger   *slog.Logger
	notifier shared.Notifier
	clock    shared.Clock
	validate *validator.Validate
	observer SaveObserver
	params   map[string]string
	onSaved  func(id int64)

	mu          sync.Mutex
	id          int64
	status      Status
	values      map[string]any
	errors      map[string]string
	loadedLines []int64
	lookups     map[string]*lookup
}

var (
	defaultValidatorOnce sync.Once
	defaultValidator     *validator.Validate
)

func sharedValidator() *validator.Validate {
	defaultValidatorOnce.Do(func() {
		defaultValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return defaultValidator
}

// New creates a form for the module described by schema.
func New(schema *entity.Schema, opts Options) (*Form, error) {
	if schema == nil || schema.Form == nil {
		return nil, ErrNoForm
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = shared.RealClock()
	}
	v := opts.Validator
	if v == nil {
		v = sharedValidator()
	}
	f := &Form{
		schema:   schema,
		spec:     schema.Form,
		store:    opts.Store,
		logger:   logger.With(slog.String("module", schema.Module)),
		notifier: opts.Notifier,
		clock:    clock,
		validate: v,
		observer: opts.Observer,
		params:   opts.Params,
		onSaved:  opts.OnSaved,
		status:   StatusReady,
		values:   map[string]any{},
		errors:   map[string]string{},
	}
	f.lookups = make(map[string]*lookup, len(f.spec.Lookups))
	for name, spec := range f.spec.Lookups {
		f.lookups[name] = newLookup(spec, clock)
	}
	return f, nil
}

// Open prepares the form. An id of zero starts a new record from the module
// defaults; otherwise the record is read from the store.
func (f *Form) Open(ctx context.Context, id int64) error {
	f.mu.Lock()
	if f.status == StatusClosed {
		f.mu.Unlock()
		return shared.ErrClosed
	}
	if id == 0 {
		f.id = 0
		f.values = f.defaults()
		f.errors = map[string]string{}
		f.loadedLines = nil
		f.status = StatusReady
		f.mu.Unlock()
		return nil
	}
	f.status = StatusLoading
	f.mu.Unlock()

	values, lineIDs, err := f.read(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusClosed {
		return shared.ErrClosed
	}
	f.status = StatusReady
	if err != nil {
		f.logger.Error("form load failed", slog.Int64("id", id), slog.Any("error", err))
		f.notify(shared.LevelDanger, f.spec.LoadFailed)
		return err
	}
	f.id = id
	f.values = values
	f.errors = map[string]string{}
	f.loadedLines = lineIDs
	return nil
}

func (f *Form) defaults() map[string]any {
	if f.spec.Defaults == nil {
		return map[string]any{}
	}
	return f.spec.Defaults(f.clock.Now(), f.params)
}

func (f *Form) read(ctx context.Context, id int64) (map[string]any, []int64, error) {
	ctx = recordstore.WithCallContext(ctx, f.spec.ReadContext)
	rows, err := f.store.ReadByID(ctx, f.spec.Model, []int64{id}, entity.Names(f.spec.ReadFields))
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, recordstore.Wrap("read", f.spec.Model, fmt.Errorf("%w: %d", recordstore.ErrNotFound, id))
	}
	rec, err := entity.Decode(f.spec.ReadFields, rows[0])
	if err != nil {
		return nil, nil, recordstore.Wrap("read", f.spec.Model, err)
	}
	values := f.spec.FromRecord(rec)

	lines := f.spec.Lines
	if lines == nil {
		return values, nil, nil
	}
	ids := rec.IDs(lines.Field)
	items := make([]entity.Line, 0, len(ids))
	if len(ids) > 0 {
		raw, err := f.store.ReadByID(ctx, lines.Model, ids, entity.Names(lines.ReadFields))
		if err != nil {
			return nil, nil, err
		}
		recs, err := entity.DecodeAll(lines.ReadFields, raw)
		if err != nil {
			return nil, nil, recordstore.Wrap("read", lines.Model, err)
		}
		for _, r := range recs {
			items = append(items, lines.FromRecord(r))
		}
	}
	values[lines.ViewField] = items
	return values, ids, nil
}

// Set updates one view field. The value is converted to the field's kind and
// the field's validation error is cleared.
func (f *Form) Set(field string, value any) error {
	return f.SetMany(map[string]any{field: value})
}

// SetMany updates several view fields at once. Nothing is changed when any
// field is unknown or does not convert.
func (f *Form) SetMany(values map[string]any) error {
	typed := make(map[string]any, len(values))
	for name, v := range values {
		fld, ok := f.spec.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		cv, err := entity.Coerce(fld.Kind, v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		typed[name] = cv
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	for name, v := range typed {
		f.values[name] = v
		delete(f.errors, name)
	}
	return nil
}

func (f *Form) editableLocked() error {
	switch f.status {
	case StatusClosed:
		return shared.ErrClosed
	case StatusLoading, StatusSaving:
		return ErrBusy
	}
	return nil
}

// Validate runs the local rules and records the resulting errors.
func (f *Form) Validate() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = f.check(trimmed(f.values))
	return copyErrors(f.errors)
}

func (f *Form) check(values map[string]any) map[string]string {
	out := map[string]string{}
	if len(f.spec.Rules) == 0 {
		return out
	}
	data := make(map[string]any, len(f.spec.Rules))
	for field := range f.spec.Rules {
		data[field] = values[field]
	}
	for field := range f.validate.ValidateMap(data, f.spec.Rules) {
		msg, ok := f.spec.Messages[field]
		if !ok {
			msg = invalidValue
		}
		out[field] = msg
	}
	return out
}

// Save validates and writes the form. Validation failures never reach the
// store; store failures raise a generic notification and keep the values.
func (f *Form) Save(ctx context.Context) (int64, error) {
	f.mu.Lock()
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return 0, err
	}
	values := trimmed(f.values)
	f.errors = f.check(values)
	if len(f.errors) > 0 {
		f.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrValidation, strings.Join(errorFields(f.errors), ", "))
	}
	out := f.spec.ToValues(values)
	if lines := f.spec.Lines; lines != nil {
		items, _ := values[lines.ViewField].([]entity.Line)
		out[lines.Field] = entity.LineCommands(items, f.loadedLines, lines.Encode)
	}
	id, isNew := f.id, f.id == 0
	f.status = StatusSaving
	f.mu.Unlock()

	var err error
	if isNew {
		id, err = f.store.Create(ctx, f.spec.Model, out)
	} else {
		err = f.store.Update(ctx, f.spec.Model, []int64{id}, out)
	}
	if f.observer != nil {
		f.observer.FormSaved(f.schema.Module, err)
	}

	f.mu.Lock()
	if f.status == StatusClosed {
		f.mu.Unlock()
		return id, err
	}
	if err != nil {
		f.status = StatusReady
		f.mu.Unlock()
		f.logger.Error("form save failed", slog.Int64("id", id), slog.Any("error", err))
		f.notify(shared.LevelDanger, f.spec.SaveFailed)
		return 0, err
	}
	f.id = id
	if f.spec.Lines == nil {
		f.status = StatusReady
		f.mu.Unlock()
	} else {
		f.mu.Unlock()
		f.reopen(ctx, id)
	}

	msg := f.spec.Updated
	if isNew {
		msg = f.spec.Created
	}
	f.notify(shared.LevelSuccess, msg)
	if f.onSaved != nil {
		f.onSaved(id)
	}
	return id, nil
}

// reopen reads a saved record back so the next save encodes its lines against
// the stored ids. A form that cannot be read back is closed.
func (f *Form) reopen(ctx context.Context, id int64) {
	values, lineIDs, err := f.read(ctx, id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == StatusClosed {
		return
	}
	if err != nil {
		f.logger.Warn("form reload after save failed, closing", slog.Int64("id", id), slog.Any("error", err))
		f.closeLocked()
		return
	}
	f.values = values
	f.loadedLines = lineIDs
	f.status = StatusReady
}

// Close discards the form. Pending lookups never fire.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *Form) closeLocked() {
	if f.status == StatusClosed {
		return
	}
	f.status = StatusClosed
	for _, l := range f.lookups {
		l.stop()
	}
}

// State returns the display projection.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := make(map[string]any, len(f.values))
	for k, v := range f.values {
		if items, ok := v.([]entity.Line); ok {
			v = append([]entity.Line(nil), items...)
		}
		fields[k] = v
	}
	st := State{
		Module: f.schema.Module,
		ID:     f.id,
		IsNew:  f.id == 0,
		Status: f.status,
		Fields: fields,
		Errors: copyErrors(f.errors),
	}
	if lines := f.spec.Lines; lines != nil {
		items, _ := f.values[lines.ViewField].([]entity.Line)
		total := entity.LinesTotal(items)
		st.Total = &total
	}
	for name, l := range f.lookups {
		if opts := l.results(); len(opts) > 0 {
			if st.Suggestions == nil {
				st.Suggestions = map[string][]entity.Option{}
			}
			st.Suggestions[name] = opts
		}
	}
	return st
}

// Status returns the lifecycle state.
func (f *Form) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Form) notify(level, msg string) {
	if f.notifier == nil || msg == "" {
		return
	}
	f.notifier.Notify(shared.Notification{Level: level, Message: msg})
}

func trimmed(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out[k] = v
	}
	return out
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func errorFields(errs map[string]string) []string {
	out := make([]string, 0, len(errs))
	for k := range errs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
