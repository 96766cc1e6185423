package entity

import (
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

// Sales lists sale orders. Orders are edited in the ERP itself, so there is no form.
var Sales = &Schema{
	Module: "sales",
	Model:  "sale.order",
	Title:  "Satışlar",
	Fields: []Field{
		F("name", KindString),
		F("date_order", KindDateTime),
		F("partner_id", KindMany2One),
		F("amount_total", KindFloat),
		F("state", KindString),
		F("invoice_status", KindString),
	},
	Order: "date_order desc",
	Limit: 20,
	Query: query.Spec{
		SearchFields: []string{"name", "partner_id.name"},
		Filters: []query.Refinement{
			{ID: "all", Label: "Hepsi"},
			{ID: "today", Label: "Bugün", Where: sinceDay(0)},
			{ID: "week", Label: "Bu Hafta", Where: sinceDay(7)},
			{ID: "month", Label: "Bu Ay", Where: func(now time.Time) query.Expr {
				first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
				return query.And(query.Cond("date_order", query.OpGte, query.DayStart(first)))
			}},
			{ID: "draft", Label: "Taslak", Where: query.Static(query.Cond("state", query.OpEq, "draft"))},
			{ID: "sale", Label: "Onaylı", Where: query.Static(query.Cond("state", query.OpEq, "sale"))},
			{ID: "done", Label: "Tamamlandı", Where: query.Static(query.Cond("state", query.OpEq, "done"))},
			{ID: "cancel", Label: "İptal", Where: query.Static(query.Cond("state", query.OpEq, "cancel"))},
		},
		DefaultFilter: "all",
	},
	LoadError: "Satışlar yüklenirken hata oluştu.",
	Row:       saleRow,
}

func sinceDay(daysAgo int) func(time.Time) query.Expr {
	return func(now time.Time) query.Expr {
		return query.And(query.Cond("date_order", query.OpGte, query.DayStart(now.AddDate(0, 0, -daysAgo))))
	}
}

var saleStates = map[string]Badge{
	"draft":  {Label: "Taslak", Class: "ms-badge--muted"},
	"sent":   {Label: "Gönderildi", Class: "ms-badge--info"},
	"sale":   {Label: "Onaylı", Class: "ms-badge--success"},
	"done":   {Label: "Tamamlandı", Class: "ms-badge--purple"},
	"cancel": {Label: "İptal", Class: "ms-badge--danger"},
}

// SaleStateBadge labels a sale order state.
func SaleStateBadge(state string) Badge {
	if b, ok := saleStates[state]; ok {
		return b
	}
	return Badge{Label: state, Class: "ms-badge--muted"}
}

func saleRow(rec Record, f Formatter) Row {
	return Row{
		"id":             rec.ID(),
		"name":           rec.String("name"),
		"date_order":     f.Date(rec.Time("date_order")),
		"partner":        rec.Ref("partner_id").Name,
		"amount_total":   f.Currency(rec.Float("amount_total")),
		"state":          SaleStateBadge(rec.String("state")),
		"invoice_status": rec.String("invoice_status"),
	}
}
