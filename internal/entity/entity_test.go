package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/query"
)

func TestDecodeConvertsWireValues(t *testing.T) {
	fields := []Field{
		F("name", KindString),
		F("vat", KindString),
		F("customer_rank", KindInt),
		F("amount_total", KindFloat),
		F("active", KindBool),
		F("invoice_date", KindDate),
		F("date_order", KindDateTime),
		F("partner_id", KindMany2One),
		F("tax_ids", KindIDs),
	}
	raw := map[string]any{
		"id":            float64(7),
		"name":          "Acme",
		"vat":           false,
		"customer_rank": float64(2),
		"amount_total":  float64(150),
		"active":        true,
		"invoice_date":  "2024-05-17",
		"date_order":    "2024-05-17 10:30:00",
		"partner_id":    []any{float64(3), "Acme Ltd"},
		"tax_ids":       []any{float64(1), float64(4)},
		"unexpected":    "dropped",
	}

	rec, err := Decode(fields, raw)
	require.NoError(t, err)

	assert.Equal(t, int64(7), rec.ID())
	assert.Equal(t, "Acme", rec.String("name"))
	assert.Equal(t, "", rec.String("vat"))
	assert.Equal(t, int64(2), rec.Int("customer_rank"))
	assert.Equal(t, 150.0, rec.Float("amount_total"))
	assert.True(t, rec.Bool("active"))
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), rec.Time("invoice_date"))
	assert.Equal(t, time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC), rec.Time("date_order"))
	assert.Equal(t, Ref{ID: 3, Name: "Acme Ltd"}, rec.Ref("partner_id"))
	assert.Equal(t, []int64{1, 4}, rec.IDs("tax_ids"))
	assert.False(t, rec.Has("unexpected"))
}

func TestDecodeRejectsWrongTypes(t *testing.T) {
	_, err := Decode([]Field{F("name", KindString)}, map[string]any{"id": 1, "name": 12})
	require.ErrorIs(t, err, ErrDecode)

	_, err = Decode(nil, map[string]any{"id": 1.5})
	require.ErrorIs(t, err, ErrDecode)

	_, err = Decode([]Field{F("date_order", KindDateTime)}, map[string]any{"date_order": "yesterday"})
	require.ErrorIs(t, err, ErrDecode)
}

func TestCoerceFalsePlaceholder(t *testing.T) {
	cases := []struct {
		kind Kind
		want any
	}{
		{KindString, ""},
		{KindInt, int64(0)},
		{KindFloat, float64(0)},
		{KindBool, false},
		{KindDate, time.Time{}},
		{KindMany2One, Ref{}},
	}
	for _, tc := range cases {
		got, err := Coerce(tc.kind, false)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestRecordMarshalJSONIsFlat(t *testing.T) {
	rec := NewRecord(5, map[string]any{
		"name":       "Kalem",
		"date_order": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"date_done":  time.Time{},
	})
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"name":"Kalem","date_order":"2024-01-02 03:04:05","date_done":null}`, string(raw))
}

func TestNamesLeadsWithID(t *testing.T) {
	assert.Equal(t, []string{"id", "name", "vat"}, Names([]Field{F("name", KindString), F("id", KindInt), F("vat", KindString)}))
}

func TestPartnerBadge(t *testing.T) {
	badge := func(c, s int64) string {
		return PartnerBadge(NewRecord(1, map[string]any{"customer_rank": c, "supplier_rank": s})).Label
	}
	assert.Equal(t, "Müşteri + Tedarikçi", badge(1, 1))
	assert.Equal(t, "Müşteri", badge(3, 0))
	assert.Equal(t, "Tedarikçi", badge(0, 1))
	assert.Equal(t, "Diğer", badge(0, 0))
}

func TestStockBadges(t *testing.T) {
	assert.Equal(t, "Stok Yok", StockStatus(0).Label)
	assert.Equal(t, "Kritik Stok", StockStatus(5).Label)
	assert.Equal(t, "Stokta", StockStatus(5.5).Label)

	f := DefaultFormatter()
	assert.Nil(t, ProductStockBadge(NewRecord(1, map[string]any{"type": "service"}), f))
	low := ProductStockBadge(NewRecord(1, map[string]any{"type": "consu", "qty_available": 3.0}), f)
	require.NotNil(t, low)
	assert.Equal(t, "3 adet", low.Label)
	assert.Equal(t, "ms-badge--warning", low.Class)
}

func TestPaymentBadgeAndOverdue(t *testing.T) {
	draft := NewRecord(1, map[string]any{"state": "draft", "payment_state": "not_paid"})
	assert.Equal(t, "Taslak", PaymentBadge(draft).Label)

	posted := NewRecord(2, map[string]any{
		"state":            "posted",
		"payment_state":    "partial",
		"invoice_date_due": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, "Kısmi Ödeme", PaymentBadge(posted).Label)

	now := time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	assert.True(t, IsOverdue(posted, now))

	paid := NewRecord(3, map[string]any{
		"state":            "posted",
		"payment_state":    "paid",
		"invoice_date_due": time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.False(t, IsOverdue(paid, now))
	assert.Equal(t, "Satış İade", MoveTypeLabel("out_refund"))
}

func TestFormatter(t *testing.T) {
	f := DefaultFormatter()
	assert.Equal(t, "12.345,50 ₺", f.Currency(12345.5))
	assert.Equal(t, "7", f.Quantity(7))
	assert.Equal(t, "2,50", f.Quantity(2.5))
	assert.Equal(t, "17.05.2024", f.Date(time.Date(2024, 5, 17, 22, 0, 0, 0, time.UTC)))
	assert.Equal(t, "—", f.Date(time.Time{}))

	fixed := time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, f.WithClock(func() time.Time { return fixed }).Now())
}

func TestLineCommands(t *testing.T) {
	encode := func(l Line) map[string]any { return map[string]any{"name": l.Name} }
	lines := []Line{
		{ID: 10, Name: "kept"},
		{Name: "new"},
		{ID: 99, Name: "foreign id"},
	}

	cmds := LineCommands(lines, []int64{10, 11}, encode)

	assert.Equal(t, []any{
		[]any{1, int64(10), map[string]any{"name": "kept"}},
		[]any{0, 0, map[string]any{"name": "new"}},
		[]any{0, 0, map[string]any{"name": "foreign id"}},
		[]any{2, int64(11)},
	}, cmds)
}

func TestLinesTotal(t *testing.T) {
	lines := []Line{
		{Quantity: 2, PriceUnit: 100, Discount: 10},
		{Quantity: 1, PriceUnit: 50},
	}
	assert.InDelta(t, 230.0, LinesTotal(lines), 0.0001)
}

func TestCoerceLinesFromJSON(t *testing.T) {
	var raw any
	require.NoError(t, json.Unmarshal([]byte(`[{"product_id":4,"name":"Vida","quantity":3,"price_unit":2.5}]`), &raw))
	got, err := Coerce(KindLines, raw)
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: 4, Name: "Vida", Quantity: 3, PriceUnit: 2.5}}, got)
}

func TestCatalog(t *testing.T) {
	var names []string
	for _, s := range Modules() {
		names = append(names, s.Module)
		require.NotNil(t, s.Row, s.Module)
		require.Positive(t, s.Limit, s.Module)
	}
	assert.Equal(t, []string{"customers", "products", "sales", "invoices", "stock", "stock_moves"}, names)

	s, ok := Lookup("stock_moves")
	require.True(t, ok)
	assert.True(t, s.Silent)
	_, ok = Lookup("payroll")
	assert.False(t, ok)
}

func TestCustomerQueries(t *testing.T) {
	expr := query.Build(Customers.Query, query.Input{Search: "acme", Filter: "customers"}, time.Now())
	assert.Equal(t, query.Expr{
		query.Cond("active", query.OpEq, true),
		query.Cond("customer_rank", query.OpGt, 0),
		query.Any(
			query.T("name", query.OpILike, "acme"),
			query.T("vat", query.OpILike, "acme"),
			query.T("phone", query.OpILike, "acme"),
		),
	}, expr)
}

func TestInvoiceTypeAndOverdueFilter(t *testing.T) {
	now := time.Date(2024, 5, 17, 15, 0, 0, 0, time.UTC)
	expr := query.Build(Invoices.Query, query.Input{Type: "supplier", Filter: "overdue"}, now)
	require.Len(t, expr, 5)
	assert.Equal(t, query.Cond("move_type", query.OpIn, supplierMoveTypes), expr[1])
	assert.Equal(t, query.Cond("invoice_date_due", query.OpLt, "2024-05-17"), expr[2])
}

func TestCustomerFormMapsRanks(t *testing.T) {
	values := customerForm.Defaults(time.Now(), nil)
	values["name"] = "  Acme  "
	values["is_supplier"] = true

	out := customerForm.ToValues(values)
	assert.Equal(t, "Acme", out["name"])
	assert.Equal(t, 1, out["customer_rank"])
	assert.Equal(t, 1, out["supplier_rank"])
	assert.Equal(t, false, out["vat"])
}

func TestProductFormCategory(t *testing.T) {
	values := productForm.Defaults(time.Now(), nil)
	assert.Equal(t, false, productForm.ToValues(values)["categ_id"])

	values["categ_id"] = int64(4)
	assert.Equal(t, int64(4), productForm.ToValues(values)["categ_id"])
}

func TestInvoiceLineEncodeDefaults(t *testing.T) {
	got := invoiceLines.Encode(Line{PriceUnit: 10})
	assert.Equal(t, "Ürün/Hizmet", got["name"])
	assert.Equal(t, 1.0, got["quantity"])
	assert.Equal(t, false, got["product_id"])
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom([]Record{
		NewRecord(1, map[string]any{"name": "Vida", "complete_name": "Hırdavat / Vida"}),
		NewRecord(2, map[string]any{"name": "Ana Depo"}),
	})
	assert.Equal(t, []Option{{ID: 1, Name: "Hırdavat / Vida"}, {ID: 2, Name: "Ana Depo"}}, opts)

	_, ok := LookupOption("warehouses")
	assert.True(t, ok)
}

func TestProductValuesAreNumeric(t *testing.T) {
	out := Products.Form.ToValues(map[string]any{
		"name":           "  Kalem ",
		"list_price":     int64(12),
		"standard_price": 7.5,
		"categ_id":       int64(0),
		"type":           "consu",
		"active":         true,
	})
	assert.Equal(t, "Kalem", out["name"])
	assert.Equal(t, 12.0, out["list_price"])
	assert.Equal(t, 7.5, out["standard_price"])
	assert.Equal(t, false, out["categ_id"])
	assert.Equal(t, false, out["barcode"])
}
