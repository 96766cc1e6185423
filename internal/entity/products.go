package entity

import (
	"strings"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

// Products lists product templates including archived ones.
var Products = &Schema{
	Module: "products",
	Model:  "product.template",
	Title:  "Ürünler",
	Fields: []Field{
		F("name", KindString),
		F("barcode", KindString),
		F("list_price", KindFloat),
		F("standard_price", KindFloat),
		F("categ_id", KindMany2One),
		F("qty_available", KindFloat),
		F("type", KindString),
		F("active", KindBool),
	},
	Order:   "name asc",
	Limit:   20,
	Context: map[string]any{"active_test": false},
	Query: query.Spec{
		SearchFields: []string{"name", "barcode"},
		Filters: []query.Refinement{
			{ID: "active", Label: "Aktif", Where: query.Static(query.Cond("active", query.OpEq, true))},
			{ID: "all", Label: "Hepsi"},
			{ID: "archived", Label: "Arşiv", Where: query.Static(query.Cond("active", query.OpEq, false))},
			{ID: "low_stock", Label: "Düşük Stok", Where: query.Static(
				query.Cond("active", query.OpEq, true),
				query.Cond("qty_available", query.OpLte, LowStockThreshold),
				query.Cond("type", query.OpNe, "service"),
			)},
		},
		DefaultFilter: "active",
	},
	LoadError: "Ürünler yüklenirken hata oluştu.",
	Row:       productRow,
	Form:      productForm,
}

var productTypeLabels = map[string]string{
	"consu":   "Sarf",
	"product": "Stoklu",
	"service": "Hizmet",
}

// ProductTypeLabel names a product type.
func ProductTypeLabel(kind string) string {
	if label, ok := productTypeLabels[kind]; ok {
		return label
	}
	return kind
}

// ProductStockBadge describes the on-hand quantity. Services have none.
func ProductStockBadge(rec Record, f Formatter) *Badge {
	if rec.String("type") == "service" {
		return nil
	}
	qty := rec.Float("qty_available")
	switch {
	case qty <= 0:
		return &Badge{Label: "Stok Yok", Class: "ms-badge--danger"}
	case qty <= LowStockThreshold:
		return &Badge{Label: f.Quantity(qty) + " adet", Class: "ms-badge--warning"}
	}
	return &Badge{Label: f.Quantity(qty) + " adet", Class: "ms-badge--success"}
}

func productRow(rec Record, f Formatter) Row {
	return Row{
		"id":             rec.ID(),
		"name":           rec.String("name"),
		"barcode":        rec.String("barcode"),
		"list_price":     f.Amount(rec.Float("list_price")),
		"standard_price": f.Amount(rec.Float("standard_price")),
		"category":       rec.Ref("categ_id").Name,
		"type":           ProductTypeLabel(rec.String("type")),
		"active":         rec.Bool("active"),
		"stock":          ProductStockBadge(rec, f),
	}
}

var productForm = &FormSpec{
	Model: "product.template",
	ReadFields: []Field{
		F("name", KindString),
		F("barcode", KindString),
		F("list_price", KindFloat),
		F("standard_price", KindFloat),
		F("categ_id", KindMany2One),
		F("type", KindString),
		F("active", KindBool),
		F("description_sale", KindString),
	},
	ReadContext: map[string]any{"active_test": false},
	Fields: []Field{
		F("name", KindString),
		F("barcode", KindString),
		F("list_price", KindFloat),
		F("standard_price", KindFloat),
		F("categ_id", KindInt),
		F("type", KindString),
		F("active", KindBool),
		F("description_sale", KindString),
	},
	Defaults: func(time.Time, map[string]string) map[string]any {
		return map[string]any{
			"name":             "",
			"barcode":          "",
			"list_price":       float64(0),
			"standard_price":   float64(0),
			"categ_id":         int64(0),
			"type":             "consu",
			"active":           true,
			"description_sale": "",
		}
	},
	Rules: map[string]any{
		"name":       "required",
		"list_price": "gte=0",
	},
	Messages: map[string]string{
		"name":       "Ürün adı zorunludur.",
		"list_price": "Fiyat negatif olamaz.",
	},
	FromRecord: func(rec Record) map[string]any {
		kind := rec.String("type")
		if kind == "" {
			kind = "consu"
		}
		active := true
		if rec.Has("active") {
			active = rec.Bool("active")
		}
		return map[string]any{
			"name":             rec.String("name"),
			"barcode":          rec.String("barcode"),
			"list_price":       rec.Float("list_price"),
			"standard_price":   rec.Float("standard_price"),
			"categ_id":         rec.Ref("categ_id").ID,
			"type":             kind,
			"active":           active,
			"description_sale": rec.String("description_sale"),
		}
	},
	ToValues: func(v map[string]any) map[string]any {
		return map[string]any{
			"name":             strings.TrimSpace(str(v, "name")),
			"barcode":          orFalse(str(v, "barcode")),
			"list_price":       numeric(v, "list_price"),
			"standard_price":   numeric(v, "standard_price"),
			"categ_id":         idOrFalse(integer(v, "categ_id")),
			"type":             str(v, "type"),
			"active":           boolean(v, "active"),
			"description_sale": orFalse(str(v, "description_sale")),
		}
	},
	Created:    "Ürün oluşturuldu.",
	Updated:    "Ürün güncellendi.",
	LoadFailed: "Ürün yüklenirken hata oluştu.",
	SaveFailed: "Kaydetme sırasında hata oluştu.",
}
