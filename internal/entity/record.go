// Package entity defines the typed view-level projections of the ERP records the
// console works with and the per-module schemas that drive lists and forms.
package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

// ErrDecode marks a backend value that does not fit the schema.
var ErrDecode = errors.New("entity: decode")

// Kind is the semantic type of a field.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindDate
	KindDateTime
	KindMany2One
	KindIDs
	KindLines
)

// Field names a backend field and its semantic type.
type Field struct {
	Name string
	Kind Kind
}

// F is shorthand for a Field literal.
func F(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind}
}

// Names returns the backend names of fields, always led by "id".
func Names(fields []Field) []string {
	out := make([]string, 0, len(fields)+1)
	out = append(out, "id")
	for _, f := range fields {
		if f.Name == "id" {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// Ref is a many-to-one reference.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.ID == 0 }

// Record is a decoded, schema-checked record projection.
type Record struct {
	id     int64
	values map[string]any
}

// NewRecord builds a record from already typed values. It is mainly useful in tests.
func NewRecord(id int64, values map[string]any) Record {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{id: id, values: cp}
}

// Decode checks raw against fields and converts every value to its Go type.
// Fields absent from the schema are dropped.
func Decode(fields []Field, raw map[string]any) (Record, error) {
	rec := Record{values: make(map[string]any, len(fields))}
	if v, ok := raw["id"]; ok {
		id, err := toInt(v)
		if err != nil {
			return Record{}, fmt.Errorf("%w: id: %v", ErrDecode, err)
		}
		rec.id = id
	}
	for _, f := range fields {
		if f.Name == "id" {
			continue
		}
		v, ok := raw[f.Name]
		if !ok {
			continue
		}
		typed, err := Coerce(f.Kind, v)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %v", ErrDecode, f.Name, err)
		}
		rec.values[f.Name] = typed
	}
	return rec, nil
}

// DecodeAll decodes a batch of raw rows.
func DecodeAll(fields []Field, rows []map[string]any) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	for _, raw := range rows {
		rec, err := Decode(fields, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Coerce converts a backend or user supplied value to the Go type of kind.
// The ERP's "false" placeholder and nil both become the zero value.
func Coerce(kind Kind, v any) (any, error) {
	if b, ok := v.(bool); ok && !b && kind != KindBool {
		v = nil
	}
	switch kind {
	case KindString:
		if v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", v)
		}
		return s, nil
	case KindInt:
		if v == nil {
			return int64(0), nil
		}
		return toInt(v)
	case KindFloat:
		if v == nil {
			return float64(0), nil
		}
		return toFloat(v)
	case KindBool:
		switch x := v.(type) {
		case nil:
			return false, nil
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case float64:
			return x != 0, nil
		}
		return nil, fmt.Errorf("want bool, got %T", v)
	case KindDate, KindDateTime:
		return toTime(v)
	case KindMany2One:
		return toRef(v)
	case KindIDs:
		return toIDs(v)
	case KindLines:
		return toLines(v)
	}
	return nil, fmt.Errorf("unknown kind %d", kind)
}

// ID returns the record key.
func (r Record) ID() int64 { return r.id }

// Has reports whether field was decoded.
func (r Record) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Value returns the typed value of field, or nil.
func (r Record) Value(field string) any { return r.values[field] }

// String returns a string field.
func (r Record) String(field string) string {
	s, _ := r.values[field].(string)
	return s
}

// Int returns an integer field.
func (r Record) Int(field string) int64 {
	i, _ := r.values[field].(int64)
	return i
}

// Float returns a float field.
func (r Record) Float(field string) float64 {
	f, _ := r.values[field].(float64)
	return f
}

// Bool returns a boolean field.
func (r Record) Bool(field string) bool {
	b, _ := r.values[field].(bool)
	return b
}

// Time returns a date or datetime field.
func (r Record) Time(field string) time.Time {
	t, _ := r.values[field].(time.Time)
	return t
}

// Ref returns a many-to-one field.
func (r Record) Ref(field string) Ref {
	ref, _ := r.values[field].(Ref)
	return ref
}

// IDs returns a to-many field.
func (r Record) IDs(field string) []int64 {
	ids, _ := r.values[field].([]int64)
	return ids
}

// MarshalJSON renders the record as a flat object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.values)+1)
	out["id"] = r.id
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := r.values[k]
		if t, ok := v.(time.Time); ok {
			if t.IsZero() {
				v = nil
			} else {
				v = t.Format(query.DateTimeLayout)
			}
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integral number %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x.UTC(), nil
	case string:
		if x == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{query.DateTimeLayout, query.DateLayout, time.RFC3339} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable time %q", x)
	}
	return time.Time{}, fmt.Errorf("want time, got %T", v)
}

func toRef(v any) (Ref, error) {
	switch x := v.(type) {
	case nil:
		return Ref{}, nil
	case Ref:
		return x, nil
	case []any:
		if len(x) == 0 {
			return Ref{}, nil
		}
		id, err := toInt(x[0])
		if err != nil {
			return Ref{}, err
		}
		ref := Ref{ID: id}
		if len(x) > 1 {
			ref.Name, _ = x[1].(string)
		}
		return ref, nil
	case map[string]any:
		id, err := toInt(x["id"])
		if err != nil {
			return Ref{}, err
		}
		name, _ := x["name"].(string)
		return Ref{ID: id, Name: name}, nil
	}
	id, err := toInt(v)
	if err != nil {
		return Ref{}, err
	}
	return Ref{ID: id}, nil
}

func toIDs(v any) ([]int64, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []int64:
		return x, nil
	}
	values := query.Values(v)
	out := make([]int64, 0, len(values))
	for _, item := range values {
		id, err := toInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
