package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partnerSpec() Spec {
	return Spec{
		Base:         And(Cond("active", OpEq, true)),
		SearchFields: []string{"name", "vat", "phone"},
		Filters: []Refinement{
			{ID: "all", Where: Static(Any(T("customer_rank", OpGt, 0), T("supplier_rank", OpGt, 0)))},
			{ID: "customers", Where: Static(Cond("customer_rank", OpGt, 0))},
			{ID: "suppliers", Where: Static(Cond("supplier_rank", OpGt, 0))},
		},
		DefaultFilter: "all",
	}
}

func TestBuildWithoutSearchHasNoSearchClause(t *testing.T) {
	expr := Build(partnerSpec(), Input{Filter: "customers", Search: "   "}, time.Now())
	require.Len(t, expr, 2)
	assert.Equal(t, Cond("active", OpEq, true), expr[0])
	assert.Equal(t, Cond("customer_rank", OpGt, 0), expr[1])
}

func TestBuildLayersSearchDisjunction(t *testing.T) {
	expr := Build(partnerSpec(), Input{Filter: "customers", Search: " acme "}, time.Now())
	require.Len(t, expr, 3)
	assert.Equal(t, Clause{
		T("name", OpILike, "acme"),
		T("vat", OpILike, "acme"),
		T("phone", OpILike, "acme"),
	}, expr[2])
}

func TestBuildDefaultsAndUnknownRefinements(t *testing.T) {
	spec := partnerSpec()
	def := Build(spec, Input{}, time.Now())
	require.Len(t, def, 2)
	assert.Len(t, def[1], 2, "default filter is the rank disjunction")

	unknown := Build(spec, Input{Filter: "nope"}, time.Now())
	assert.Equal(t, spec.Base, unknown)
}

func TestBuildDoesNotMutateBase(t *testing.T) {
	spec := partnerSpec()
	_ = Build(spec, Input{Filter: "suppliers", Search: "x"}, time.Now())
	assert.Len(t, spec.Base, 1)
}

func TestBuildTimeDependentFilter(t *testing.T) {
	spec := Spec{Filters: []Refinement{{ID: "today", Where: func(now time.Time) Expr {
		return And(Cond("date_order", OpGte, DayStart(now)))
	}}}}
	now := time.Date(2024, 5, 17, 15, 30, 0, 0, time.UTC)
	expr := Build(spec, Input{Filter: "today"}, now)
	assert.Equal(t, And(Cond("date_order", OpGte, "2024-05-17 00:00:00")), expr)
}

func TestDayStartIsUTC(t *testing.T) {
	istanbul := time.FixedZone("TRT", 3*60*60)
	assert.Equal(t, "2024-05-16 21:00:00", DayStart(time.Date(2024, 5, 17, 1, 30, 0, 0, istanbul)))
	assert.Equal(t, "2024-05-16 21:00:00", DayStart(time.Date(2024, 5, 17, 23, 59, 0, 0, istanbul)))
	assert.Equal(t, "2024-05-17 00:00:00", DayStart(time.Date(2024, 5, 17, 23, 59, 0, 0, time.UTC)))
}

func TestDomainPolishNotation(t *testing.T) {
	expr := Build(partnerSpec(), Input{Search: "acme"}, time.Now())
	domain := expr.Domain()
	assert.Equal(t, []any{
		[]any{"active", "=", true},
		"|",
		[]any{"customer_rank", ">", 0},
		[]any{"supplier_rank", ">", 0},
		"|", "|",
		[]any{"name", "ilike", "acme"},
		[]any{"vat", "ilike", "acme"},
		[]any{"phone", "ilike", "acme"},
	}, domain)
	assert.Empty(t, Expr(nil).Domain())
}

func TestWherePostgres(t *testing.T) {
	expr := And(
		Cond("active", OpEq, true),
		Any(T("name", OpILike, "50%"), T("vat", OpILike, "50%")),
		Cond("state", OpIn, []string{"draft", "posted"}),
		Cond("categ_id", OpEq, nil),
	)
	sql, args, err := Postgres.Where(expr, func(f string) (string, error) { return f, nil }, 1)
	require.NoError(t, err)
	assert.Equal(t, `active = $1 AND (name ILIKE $2 ESCAPE '\' OR vat ILIKE $3 ESCAPE '\') AND state IN ($4, $5) AND categ_id IS NULL`, sql)
	assert.Equal(t, []any{true, `%50\%%`, `%50\%%`, "draft", "posted"}, args)
}

func TestWhereSQLiteAndEmptyIn(t *testing.T) {
	expr := And(Cond("qty", OpLte, 5), Cond("type", OpIn, []string{}), Cond("type", OpNotIn, nil))
	sql, args, err := SQLite.Where(expr, func(f string) (string, error) { return f, nil }, 1)
	require.NoError(t, err)
	assert.Equal(t, "qty <= ? AND 1=0 AND 1=1", sql)
	assert.Equal(t, []any{5}, args)

	sql, args, err = SQLite.Where(nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "1=1", sql)
	assert.Empty(t, args)
}

func TestWhereUnsupportedOperator(t *testing.T) {
	_, _, err := Postgres.Where(And(Cond("a", Operator("child_of"), 1)), func(f string) (string, error) { return f, nil }, 1)
	assert.ErrorIs(t, err, ErrUnsupportedOperator)
}

func TestMatch(t *testing.T) {
	rec := map[string]any{
		"name":          "ACME Ltd",
		"active":        true,
		"customer_rank": 1,
		"supplier_rank": 0,
		"partner_id":    []any{int64(7), "Globex"},
		"state":         "posted",
		"categ_id":      false,
	}
	assert.True(t, Build(partnerSpec(), Input{Search: "acme"}, time.Now()).Match(rec))
	assert.False(t, Build(partnerSpec(), Input{Filter: "suppliers"}, time.Now()).Match(rec))
	assert.True(t, And(Cond("partner_id.name", OpILike, "glob")).Match(rec))
	assert.True(t, And(Cond("partner_id", OpEq, 7)).Match(rec))
	assert.True(t, And(Cond("state", OpNotIn, []string{"draft"})).Match(rec))
	assert.True(t, And(Cond("categ_id", OpEq, nil)).Match(rec))
	assert.True(t, Expr(nil).Match(rec))
}

func TestFieldsAndKey(t *testing.T) {
	expr := Build(partnerSpec(), Input{Search: "a"}, time.Now())
	assert.Equal(t, []string{"active", "customer_rank", "supplier_rank", "name", "vat", "phone"}, expr.Fields())
	assert.Equal(t, expr.Key(), Build(partnerSpec(), Input{Search: "a"}, time.Now()).Key())
	assert.NotEqual(t, expr.Key(), Build(partnerSpec(), Input{Search: "b"}, time.Now()).Key())
}
