package query

import (
	"fmt"
	"strings"
)

// Match evaluates the expression against a flat record. Dotted fields such as
// "partner_id.name" resolve through many-to-one values stored as [id, name] pairs.
func (e Expr) Match(rec map[string]any) bool {
	for _, c := range e {
		matched := false
		for _, t := range c {
			if t.Match(rec) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Match evaluates a single term against a flat record.
func (t Term) Match(rec map[string]any) bool {
	v := resolve(rec, t.Field)
	switch t.Op {
	case OpEq:
		return equal(v, t.Value)
	case OpNe:
		return !equal(v, t.Value)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compare(v, t.Value)
		if !ok {
			return false
		}
		switch t.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpILike:
		s, ok := v.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(t.Value)))
	case OpIn, OpNotIn:
		found := false
		for _, candidate := range Values(t.Value) {
			if equal(v, candidate) {
				found = true
				break
			}
		}
		if t.Op == OpIn {
			return found
		}
		return !found
	}
	return false
}

func resolve(rec map[string]any, field string) any {
	head, tail, dotted := strings.Cut(field, ".")
	v := rec[head]
	if !dotted {
		return v
	}
	if pair, ok := v.([]any); ok && len(pair) == 2 && tail == "name" {
		return pair[1]
	}
	if nested, ok := v.(map[string]any); ok {
		return resolve(nested, tail)
	}
	return nil
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return isFalsy(a) && isFalsy(b)
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if pair, ok := a.([]any); ok && len(pair) == 2 {
		return equal(pair[0], b)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	}
	return false
}

func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
