package entity

import (
	"github.com/mobilsoft/backoffice/internal/query"
)

var stockBase = query.And(
	query.Cond("type", query.OpIn, []string{"product", "consu"}),
	query.Cond("active", query.OpEq, true),
)

// StockLevels lists on-hand quantities of storable product variants.
var StockLevels = &Schema{
	Module: "stock",
	Model:  "product.product",
	Title:  "Stok",
	Fields: []Field{
		F("name", KindString),
		F("barcode", KindString),
		F("qty_available", KindFloat),
		F("virtual_available", KindFloat),
		F("categ_id", KindMany2One),
		F("type", KindString),
		F("uom_id", KindMany2One),
		F("standard_price", KindFloat),
		F("list_price", KindFloat),
	},
	Order: "qty_available asc, name asc",
	Limit: 25,
	Query: query.Spec{
		Base:         stockBase,
		SearchFields: []string{"name", "barcode"},
		Filters: []query.Refinement{
			{ID: "all", Label: "Hepsi"},
			{ID: "out", Label: "Stok Yok", Where: query.Static(query.Cond("qty_available", query.OpLte, 0))},
			{ID: "low", Label: "Kritik", Where: query.Static(
				query.Cond("qty_available", query.OpGt, 0),
				query.Cond("qty_available", query.OpLte, LowStockThreshold),
			)},
			{ID: "normal", Label: "Normal", Where: query.Static(query.Cond("qty_available", query.OpGt, LowStockThreshold))},
		},
		DefaultFilter: "all",
	},
	LoadError: "Stok bilgileri yüklenirken hata oluştu.",
	Summary: &SummarySpec{TotalKey: "total_products", Counts: []SummaryCount{
		{Key: "out_of_stock", Where: stockBase.With(query.Cond("qty_available", query.OpLte, 0))},
		{Key: "low_stock", Where: stockBase.With(
			query.Cond("qty_available", query.OpGt, 0),
			query.Cond("qty_available", query.OpLte, LowStockThreshold),
		)},
	}},
	Row: stockRow,
}

// StockStatus describes the on-hand quantity of a product variant.
func StockStatus(qty float64) Badge {
	switch {
	case qty <= 0:
		return Badge{Label: "Stok Yok", Class: "ms-badge--danger"}
	case qty <= LowStockThreshold:
		return Badge{Label: "Kritik Stok", Class: "ms-badge--warning"}
	}
	return Badge{Label: "Stokta", Class: "ms-badge--success"}
}

func stockRow(rec Record, f Formatter) Row {
	qty := rec.Float("qty_available")
	return Row{
		"id":                rec.ID(),
		"name":              rec.String("name"),
		"barcode":           rec.String("barcode"),
		"qty_available":     f.Quantity(qty),
		"virtual_available": f.Quantity(rec.Float("virtual_available")),
		"category":          rec.Ref("categ_id").Name,
		"uom":               rec.Ref("uom_id").Name,
		"standard_price":    f.Currency(rec.Float("standard_price")),
		"list_price":        f.Currency(rec.Float("list_price")),
		"status":            StockStatus(qty),
	}
}

// StockMoves lists stock pickings. Load failures are only logged.
var StockMoves = &Schema{
	Module: "stock_moves",
	Model:  "stock.picking",
	Title:  "Stok Hareketleri",
	Fields: []Field{
		F("name", KindString),
		F("picking_type_id", KindMany2One),
		F("partner_id", KindMany2One),
		F("origin", KindString),
		F("scheduled_date", KindDateTime),
		F("date_done", KindDateTime),
		F("state", KindString),
		F("move_type", KindString),
	},
	Order: "scheduled_date desc",
	Limit: 25,
	Query: query.Spec{
		SearchFields: []string{"name", "origin"},
		Filters: []query.Refinement{
			{ID: "done", Label: "Tamamlanan", Where: query.Static(query.Cond("state", query.OpEq, "done"))},
			{ID: "draft", Label: "Bekleyen", Where: query.Static(
				query.Cond("state", query.OpIn, []string{"draft", "waiting", "confirmed", "assigned"}),
			)},
			{ID: "all", Label: "Hepsi"},
		},
		DefaultFilter: "done",
	},
	Silent:    true,
	LoadError: "Stok hareketleri yüklenirken hata oluştu.",
	Row:       pickingRow,
}

var pickingStates = map[string]Badge{
	"draft":     {Label: "Taslak", Class: "ms-badge--muted"},
	"waiting":   {Label: "Bekliyor", Class: "ms-badge--muted"},
	"confirmed": {Label: "Onaylandı", Class: "ms-badge--info"},
	"assigned":  {Label: "Hazır", Class: "ms-badge--warning"},
	"done":      {Label: "Tamamlandı", Class: "ms-badge--success"},
	"cancel":    {Label: "İptal", Class: "ms-badge--danger"},
}

// PickingStateBadge labels a stock picking state.
func PickingStateBadge(state string) Badge {
	if b, ok := pickingStates[state]; ok {
		return b
	}
	return Badge{Label: state, Class: "ms-badge--muted"}
}

func pickingRow(rec Record, f Formatter) Row {
	return Row{
		"id":             rec.ID(),
		"name":           rec.String("name"),
		"picking_type":   rec.Ref("picking_type_id").Name,
		"partner":        rec.Ref("partner_id").Name,
		"origin":         rec.String("origin"),
		"scheduled_date": f.Date(rec.Time("scheduled_date")),
		"date_done":      f.Date(rec.Time("date_done")),
		"state":          PickingStateBadge(rec.String("state")),
	}
}
