// Package query models backend-agnostic filter expressions and builds them from
// list view state.
package query

import (
	"encoding/json"
	"strings"
)

// Operator is a comparison applied by a Term.
type Operator string

const (
	OpEq    Operator = "="
	OpNe    Operator = "!="
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
	OpNotIn Operator = "not in"
)

// Term is a single field/operator/value triple.
type Term struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// T is shorthand for constructing a Term.
func T(field string, op Operator, value any) Term {
	return Term{Field: field, Op: op, Value: value}
}

// Clause is a disjunction of terms. A clause holding one term is a plain condition.
type Clause []Term

// Cond returns a single-term clause.
func Cond(field string, op Operator, value any) Clause {
	return Clause{T(field, op, value)}
}

// Any returns a clause matching when at least one of the terms matches.
func Any(terms ...Term) Clause {
	return Clause(terms)
}

// Expr is a conjunction of clauses. The empty expression matches every record.
type Expr []Clause

// And builds an expression from the given clauses, skipping empty ones.
func And(clauses ...Clause) Expr {
	out := make(Expr, 0, len(clauses))
	for _, c := range clauses {
		if len(c) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// With returns a new expression holding e's clauses followed by the extra ones.
// The receiver is never modified.
func (e Expr) With(clauses ...Clause) Expr {
	out := make(Expr, 0, len(e)+len(clauses))
	out = append(out, e...)
	for _, c := range clauses {
		if len(c) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Merge concatenates expressions.
func (e Expr) Merge(other Expr) Expr {
	return e.With(other...)
}

// IsEmpty reports whether the expression has no clauses.
func (e Expr) IsEmpty() bool {
	return len(e) == 0
}

// Fields lists the distinct field names referenced by the expression in order of appearance.
func (e Expr) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range e {
		for _, t := range c {
			if _, ok := seen[t.Field]; ok {
				continue
			}
			seen[t.Field] = struct{}{}
			out = append(out, t.Field)
		}
	}
	return out
}

// Key returns a stable textual form of the expression, suitable for cache keys.
func (e Expr) Key() string {
	if len(e) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return e.String()
	}
	return string(raw)
}

// String renders the expression for logs.
func (e Expr) String() string {
	if len(e) == 0 {
		return "TRUE"
	}
	parts := make([]string, 0, len(e))
	for _, c := range e {
		terms := make([]string, 0, len(c))
		for _, t := range c {
			raw, _ := json.Marshal(t.Value)
			terms = append(terms, t.Field+" "+string(t.Op)+" "+string(raw))
		}
		if len(terms) == 1 {
			parts = append(parts, terms[0])
			continue
		}
		parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	}
	return strings.Join(parts, " AND ")
}
