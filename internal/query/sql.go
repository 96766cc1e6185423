package query

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrUnsupportedOperator is returned when a term uses an operator the SQL compiler does not know.
var ErrUnsupportedOperator = errors.New("query: unsupported operator")

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// ILike is the case-insensitive pattern operator.
	ILike string
}

// Postgres uses numbered placeholders and ILIKE.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	ILike:       "ILIKE",
}

// SQLite uses positional placeholders; LIKE is case-insensitive for ASCII.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	ILike:       "LIKE",
}

// ColumnFunc resolves an expression field to a SQL column expression.
type ColumnFunc func(field string) (string, error)

// Where compiles e into a WHERE body (without the keyword). Bind parameters are
// numbered from start. An empty expression compiles to "TRUE"-equivalent "1=1".
func (d Dialect) Where(e Expr, column ColumnFunc, start int) (string, []any, error) {
	if len(e) == 0 {
		return "1=1", nil, nil
	}
	w := &sqlWriter{dialect: d, column: column, next: start}
	parts := make([]string, 0, len(e))
	for _, c := range e {
		terms := make([]string, 0, len(c))
		for _, t := range c {
			frag, err := w.term(t)
			if err != nil {
				return "", nil, err
			}
			terms = append(terms, frag)
		}
		if len(terms) == 1 {
			parts = append(parts, terms[0])
			continue
		}
		parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	}
	return strings.Join(parts, " AND "), w.args, nil
}

type sqlWriter struct {
	dialect Dialect
	column  ColumnFunc
	next    int
	args    []any
}

func (w *sqlWriter) bind(v any) string {
	w.args = append(w.args, v)
	ph := w.dialect.Placeholder(w.next)
	w.next++
	return ph
}

func (w *sqlWriter) term(t Term) (string, error) {
	col, err := w.column(t.Field)
	if err != nil {
		return "", err
	}
	switch t.Op {
	case OpEq, OpNe:
		if t.Value == nil {
			if t.Op == OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		op := "="
		if t.Op == OpNe {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", col, op, w.bind(t.Value)), nil
	case OpGt, OpGte, OpLt, OpLte:
		return fmt.Sprintf("%s %s %s", col, string(t.Op), w.bind(t.Value)), nil
	case OpILike:
		pattern := "%" + escapeLike(fmt.Sprint(t.Value)) + "%"
		return fmt.Sprintf("%s %s %s ESCAPE '\\'", col, w.dialect.ILike, w.bind(pattern)), nil
	case OpIn, OpNotIn:
		values := Values(t.Value)
		if len(values) == 0 {
			if t.Op == OpIn {
				return "1=0", nil
			}
			return "1=1", nil
		}
		phs := make([]string, 0, len(values))
		for _, v := range values {
			phs = append(phs, w.bind(v))
		}
		op := "IN"
		if t.Op == OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(phs, ", ")), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, t.Op)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Values flattens a slice or array value into []any. Scalars become a one-element slice.
func Values(v any) []any {
	if v == nil {
		return nil
	}
	if vs, ok := v.([]any); ok {
		return vs
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
