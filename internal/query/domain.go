package query

// Domain encodes the expression in the prefix ("polish") notation used by
// Odoo-style ORMs: top-level terms are implicitly AND-ed and every clause of n
// terms is preceded by n-1 "|" operators.
func (e Expr) Domain() []any {
	domain := make([]any, 0)
	for _, c := range e {
		for i := 1; i < len(c); i++ {
			domain = append(domain, "|")
		}
		for _, t := range c {
			domain = append(domain, []any{t.Field, string(t.Op), t.Value})
		}
	}
	return domain
}
