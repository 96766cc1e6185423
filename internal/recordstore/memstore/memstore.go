// Package memstore provides an in-memory recordstore.Store. Values are kept in
// the ERP wire shape exactly as written, which makes it a convenient backend for
// tests and for running the console without an ERP.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// Hook runs before every call. A non-nil error fails the call.
type Hook func(ctx context.Context, op, model string) error

// Call records one store call.
type Call struct {
	Op    string
	Model string
	Where query.Expr
	IDs   []int64
	Opts  recordstore.Options
}

type table struct {
	next int64
	rows map[int64]map[string]any
}

// ERPDefaults are the values the ERP fills in on create when the caller omits
// them. Archivable models start out active.
var ERPDefaults = map[string]map[string]any{
	"res.partner":      {"active": true},
	"product.template": {"active": true},
	"product.product":  {"active": true},
	"pos.config":       {"active": true},
}

// Store is a mutex-guarded map of models to rows.
type Store struct {
	mu       sync.RWMutex
	tables   map[string]*table
	defaults map[string]map[string]any
	calls    []Call
	hook     Hook
}

var _ recordstore.Store = (*Store)(nil)

// New returns an empty store that applies ERPDefaults on create.
func New() *Store {
	defaults := make(map[string]map[string]any, len(ERPDefaults))
	for model, values := range ERPDefaults {
		defaults[model] = clone(values)
	}
	return &Store{tables: map[string]*table{}, defaults: defaults}
}

// SetDefaults replaces the create defaults of model. Nil removes them.
func (s *Store) SetDefaults(model string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if values == nil {
		delete(s.defaults, model)
		return
	}
	s.defaults[model] = clone(values)
}

// SetHook installs h. Passing nil removes it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Seed inserts rows as given, without defaults or call recording, and returns
// their ids.
func (s *Store) Seed(model string, rows ...map[string]any) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, s.insert(model, r))
	}
	return ids
}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls of op were made. An empty op counts all.
func (s *Store) CallCount(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			n++
		}
	}
	return n
}

// Row returns a copy of a stored row.
func (s *Store) Row(model string, id int64) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[model]
	if !ok {
		return nil, false
	}
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return clone(r), true
}

func (s *Store) begin(ctx context.Context, c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, c.Op, c.Model); err != nil {
			return recordstore.Wrap(c.Op, c.Model, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return recordstore.Wrap(c.Op, c.Model, err)
	}
	return nil
}

// Count returns the number of rows matching where.
func (s *Store) Count(ctx context.Context, model string, where query.Expr) (int, error) {
	if err := s.begin(ctx, Call{Op: "count", Model: model, Where: where}); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(ctx, model, where)), nil
}

// Fetch returns one ordered page of rows matching where.
func (s *Store) Fetch(ctx context.Context, model string, where query.Expr, fields []string, opts recordstore.Options) ([]map[string]any, error) {
	if err := s.begin(ctx, Call{Op: "fetch", Model: model, Where: where, Opts: opts}); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.match(ctx, model, where)
	if err := sortRows(rows, opts.Order); err != nil {
		return nil, recordstore.Wrap("fetch", model, err)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, project(r, fields))
	}
	return out, nil
}

// ReadByID returns rows in the order of ids.
func (s *Store) ReadByID(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	if err := s.begin(ctx, Call{Op: "read", Model: model, IDs: ids}); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[model]
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		var r map[string]any
		if t != nil {
			r = t.rows[id]
		}
		if r == nil {
			return nil, recordstore.Wrap("read", model, fmt.Errorf("%w: %s(%d)", recordstore.ErrNotFound, model, id))
		}
		out = append(out, project(r, fields))
	}
	return out, nil
}

// Create stores values under a new id. Fields the model defaults and values
// omits are filled in first.
func (s *Store) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	if err := s.begin(ctx, Call{Op: "create", Model: model}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := clone(values)
	for k, v := range s.defaults[model] {
		if _, ok := row[k]; !ok {
			row[k] = v
		}
	}
	return s.insert(model, row), nil
}

// Update merges values into every row in ids.
func (s *Store) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	if err := s.begin(ctx, Call{Op: "update", Model: model, IDs: ids}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tables[model]
	for _, id := range ids {
		if t == nil || t.rows[id] == nil {
			return recordstore.Wrap("update", model, fmt.Errorf("%w: %s(%d)", recordstore.ErrNotFound, model, id))
		}
	}
	for _, id := range ids {
		for k, v := range values {
			t.rows[id][k] = v
		}
	}
	return nil
}

func (s *Store) insert(model string, values map[string]any) int64 {
	t, ok := s.tables[model]
	if !ok {
		t = &table{rows: map[int64]map[string]any{}}
		s.tables[model] = t
	}
	row := clone(values)
	id := t.next + 1
	if v, ok := row["id"].(int64); ok && v > 0 {
		id = v
	}
	if id > t.next {
		t.next = id
	}
	row["id"] = id
	t.rows[id] = row
	return id
}

func (s *Store) match(ctx context.Context, model string, where query.Expr) []map[string]any {
	t, ok := s.tables[model]
	if !ok {
		return nil
	}
	hasActive := false
	for _, r := range t.rows {
		if _, ok := r["active"]; ok {
			hasActive = true
			break
		}
	}
	where = recordstore.ActiveDefault(ctx, where, hasActive)

	var out []map[string]any
	for _, r := range t.rows {
		if where.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["id"].(int64) < out[j]["id"].(int64) })
	return out
}

type orderKey struct {
	field string
	desc  bool
}

func sortRows(rows []map[string]any, order string) error {
	var keys []orderKey
	for _, item := range strings.Split(order, ",") {
		tokens := strings.Fields(item)
		if len(tokens) == 0 {
			continue
		}
		k := orderKey{field: tokens[0]}
		if len(tokens) > 1 {
			switch strings.ToLower(tokens[1]) {
			case "asc":
			case "desc":
				k.desc = true
			default:
				return fmt.Errorf("memstore: invalid order %q", item)
			}
		}
		keys = append(keys, k)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compare(rows[i][k.field], rows[j][k.field])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

// compare orders unset values first, numbers numerically, many-to-one pairs by
// name and everything else by its text.
func compare(a, b any) int {
	a, b = sortable(a), sortable(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func sortable(v any) any {
	switch x := v.(type) {
	case bool:
		if !x {
			return nil
		}
		return 1
	case []any:
		if len(x) == 2 {
			return x[1]
		}
	}
	return v
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func project(r map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return clone(r)
	}
	out := make(map[string]any, len(fields)+1)
	out["id"] = r["id"]
	for _, f := range fields {
		v, ok := r[f]
		if !ok {
			v = false
		}
		out[f] = v
	}
	return out
}

func clone(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
