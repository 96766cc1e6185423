package query

import (
	"strings"
	"time"
)

// Refinement is a named categorical filter layered on top of an entity's base clause.
type Refinement struct {
	ID    string
	Label string
	// Where returns the clauses contributed by the refinement. A nil Where adds nothing.
	Where func(now time.Time) Expr
}

// Static wraps a fixed expression as a refinement predicate.
func Static(clauses ...Clause) func(time.Time) Expr {
	expr := And(clauses...)
	return func(time.Time) Expr { return expr }
}

// Spec describes how list state maps onto a filter expression for one entity type.
type Spec struct {
	Base          Expr
	SearchFields  []string
	Filters       []Refinement
	DefaultFilter string
	Types         []Refinement
	DefaultType   string
}

// Input is the part of the list state that influences the filter expression.
type Input struct {
	Search string
	Filter string
	Type   string
}

// Build translates input into a filter expression. Unknown filter or type ids add
// no refinement and an empty (or blank) search adds no search clause, so Build
// always produces a valid expression.
func Build(spec Spec, in Input, now time.Time) Expr {
	expr := And().Merge(spec.Base)
	if r, ok := spec.refinement(spec.Types, in.Type, spec.DefaultType); ok && r.Where != nil {
		expr = expr.Merge(r.Where(now))
	}
	if r, ok := spec.refinement(spec.Filters, in.Filter, spec.DefaultFilter); ok && r.Where != nil {
		expr = expr.Merge(r.Where(now))
	}
	if clause := SearchClause(spec.SearchFields, in.Search); len(clause) > 0 {
		expr = expr.With(clause)
	}
	return expr
}

// SearchClause returns a case-insensitive substring disjunction over fields, or
// nil when text is blank.
func SearchClause(fields []string, text string) Clause {
	q := strings.TrimSpace(text)
	if q == "" || len(fields) == 0 {
		return nil
	}
	clause := make(Clause, 0, len(fields))
	for _, f := range fields {
		clause = append(clause, T(f, OpILike, q))
	}
	return clause
}

// HasFilter reports whether id names one of the spec's filters.
func (s Spec) HasFilter(id string) bool {
	_, ok := s.refinement(s.Filters, id, "")
	return ok
}

// HasType reports whether id names one of the spec's record types.
func (s Spec) HasType(id string) bool {
	_, ok := s.refinement(s.Types, id, "")
	return ok
}

func (s Spec) refinement(list []Refinement, id, fallback string) (Refinement, bool) {
	if id == "" {
		id = fallback
	}
	if id == "" {
		return Refinement{}, false
	}
	for _, r := range list {
		if r.ID == id {
			return r, true
		}
	}
	return Refinement{}, false
}

// DayStart returns the start of t's calendar day, in t's location, formatted as
// an ERP datetime. ERP datetimes are stored in UTC.
func DayStart(t time.Time) string {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UTC().Format(DateTimeLayout)
}

// Layouts used by the ERP wire format.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)
