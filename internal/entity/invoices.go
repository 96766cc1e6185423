package entity

import (
	"strings"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

var (
	customerMoveTypes = []string{"out_invoice", "out_refund"}
	supplierMoveTypes = []string{"in_invoice", "in_refund"}
	paidStates        = []string{"paid", "in_payment"}
)

// Invoices lists customer or supplier invoices and refunds.
var Invoices = &Schema{
	Module: "invoices",
	Model:  "account.move",
	Title:  "Faturalar",
	Fields: []Field{
		F("name", KindString),
		F("invoice_date", KindDate),
		F("invoice_date_due", KindDate),
		F("partner_id", KindMany2One),
		F("amount_total", KindFloat),
		F("amount_residual", KindFloat),
		F("payment_state", KindString),
		F("state", KindString),
		F("move_type", KindString),
		F("ref", KindString),
	},
	Order: "invoice_date desc, name desc",
	Limit: 20,
	Query: query.Spec{
		Base:         query.And(query.Cond("state", query.OpIn, []string{"draft", "posted", "cancel"})),
		SearchFields: []string{"name", "partner_id.name", "ref"},
		Types: []query.Refinement{
			{ID: "customer", Label: "Satış", Where: query.Static(query.Cond("move_type", query.OpIn, customerMoveTypes))},
			{ID: "supplier", Label: "Alış", Where: query.Static(query.Cond("move_type", query.OpIn, supplierMoveTypes))},
		},
		DefaultType: "customer",
		Filters: []query.Refinement{
			{ID: "all", Label: "Hepsi"},
			{ID: "unpaid", Label: "Ödenmedi", Where: query.Static(
				query.Cond("payment_state", query.OpEq, "not_paid"),
				query.Cond("state", query.OpEq, "posted"),
			)},
			{ID: "partial", Label: "Kısmi", Where: query.Static(
				query.Cond("payment_state", query.OpEq, "partial"),
				query.Cond("state", query.OpEq, "posted"),
			)},
			{ID: "paid", Label: "Ödendi", Where: query.Static(query.Cond("payment_state", query.OpIn, paidStates))},
			{ID: "overdue", Label: "Vadesi Geçmiş", Where: func(now time.Time) query.Expr {
				return query.And(
					query.Cond("invoice_date_due", query.OpLt, now.Format(query.DateLayout)),
					query.Cond("payment_state", query.OpNotIn, paidStates),
					query.Cond("state", query.OpEq, "posted"),
				)
			}},
		},
		DefaultFilter: "all",
	},
	LoadError: "Faturalar yüklenirken hata oluştu.",
	Row:       invoiceRow,
	Form:      invoiceForm,
}

var moveTypeLabels = map[string]string{
	"out_invoice": "Satış Faturası",
	"out_refund":  "Satış İade",
	"in_invoice":  "Alış Faturası",
	"in_refund":   "Alış İade",
}

// MoveTypeLabel names an accounting move type.
func MoveTypeLabel(moveType string) string {
	if label, ok := moveTypeLabels[moveType]; ok {
		return label
	}
	return moveType
}

// PaymentBadge summarises the document and payment state of an invoice.
func PaymentBadge(rec Record) Badge {
	switch rec.String("state") {
	case "draft":
		return Badge{Label: "Taslak", Class: "ms-badge--muted"}
	case "cancel":
		return Badge{Label: "İptal", Class: "ms-badge--danger"}
	}
	switch ps := rec.String("payment_state"); ps {
	case "paid":
		return Badge{Label: "Ödendi", Class: "ms-badge--success"}
	case "in_payment":
		return Badge{Label: "Ödeniyor", Class: "ms-badge--info"}
	case "partial":
		return Badge{Label: "Kısmi Ödeme", Class: "ms-badge--warning"}
	case "not_paid":
		return Badge{Label: "Ödenmedi", Class: "ms-badge--danger"}
	case "":
		return Badge{Label: "—", Class: "ms-badge--muted"}
	default:
		return Badge{Label: ps, Class: "ms-badge--muted"}
	}
}

// IsOverdue reports whether an unpaid invoice is past its due date.
func IsOverdue(rec Record, now time.Time) bool {
	due := rec.Time("invoice_date_due")
	if due.IsZero() {
		return false
	}
	switch rec.String("payment_state") {
	case "paid", "in_payment":
		return false
	}
	return due.Before(now)
}

func invoiceRow(rec Record, f Formatter) Row {
	return Row{
		"id":               rec.ID(),
		"name":             rec.String("name"),
		"invoice_date":     f.Date(rec.Time("invoice_date")),
		"invoice_date_due": f.Date(rec.Time("invoice_date_due")),
		"partner":          rec.Ref("partner_id").Name,
		"amount_total":     f.Currency(rec.Float("amount_total")),
		"amount_residual":  f.Currency(rec.Float("amount_residual")),
		"move_type":        MoveTypeLabel(rec.String("move_type")),
		"ref":              rec.String("ref"),
		"payment":          PaymentBadge(rec),
		"overdue":          IsOverdue(rec, f.Now()),
	}
}

var invoiceLines = &LineSpec{
	ViewField: "lines",
	Field:     "invoice_line_ids",
	Model:     "account.move.line",
	ReadFields: []Field{
		F("product_id", KindMany2One),
		F("name", KindString),
		F("quantity", KindFloat),
		F("price_unit", KindFloat),
		F("tax_ids", KindIDs),
		F("discount", KindFloat),
	},
	FromRecord: func(rec Record) Line {
		qty := rec.Float("quantity")
		if qty == 0 {
			qty = 1
		}
		product := rec.Ref("product_id")
		return Line{
			ID:          rec.ID(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Name:        rec.String("name"),
			Quantity:    qty,
			PriceUnit:   rec.Float("price_unit"),
			Discount:    rec.Float("discount"),
			TaxIDs:      rec.IDs("tax_ids"),
		}
	},
	Encode: func(l Line) map[string]any {
		name := l.Name
		if name == "" {
			name = l.ProductName
		}
		if name == "" {
			name = "Ürün/Hizmet"
		}
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		return map[string]any{
			"product_id": idOrFalse(l.ProductID),
			"name":       name,
			"quantity":   qty,
			"price_unit": l.PriceUnit,
			"discount":   l.Discount,
		}
	},
}

var invoiceForm = &FormSpec{
	Model: "account.move",
	ReadFields: []Field{
		F("move_type", KindString),
		F("partner_id", KindMany2One),
		F("invoice_date", KindDate),
		F("invoice_date_due", KindDate),
		F("ref", KindString),
		F("narration", KindString),
		F("invoice_line_ids", KindIDs),
		F("state", KindString),
		F("payment_state", KindString),
		F("amount_total", KindFloat),
		F("amount_residual", KindFloat),
	},
	Fields: []Field{
		F("move_type", KindString),
		F("partner_id", KindInt),
		F("partner_name", KindString),
		F("invoice_date", KindString),
		F("invoice_date_due", KindString),
		F("ref", KindString),
		F("narration", KindString),
		F("lines", KindLines),
	},
	Defaults: func(now time.Time, params map[string]string) map[string]any {
		moveType := params["move_type"]
		if _, ok := moveTypeLabels[moveType]; !ok {
			moveType = "out_invoice"
		}
		today := now.Format(query.DateLayout)
		return map[string]any{
			"move_type":        moveType,
			"partner_id":       int64(0),
			"partner_name":     "",
			"invoice_date":     today,
			"invoice_date_due": today,
			"ref":              "",
			"narration":        "",
			"lines":            []Line{},
		}
	},
	Rules: map[string]any{
		"partner_id":   "required",
		"invoice_date": "required",
		"lines":        "min=1",
	},
	Messages: map[string]string{
		"partner_id":   "Cari zorunludur.",
		"invoice_date": "Fatura tarihi zorunludur.",
		"lines":        "En az bir fatura satırı gereklidir.",
	},
	FromRecord: func(rec Record) map[string]any {
		partner := rec.Ref("partner_id")
		return map[string]any{
			"move_type":        rec.String("move_type"),
			"partner_id":       partner.ID,
			"partner_name":     partner.Name,
			"invoice_date":     dateString(rec.Time("invoice_date")),
			"invoice_date_due": dateString(rec.Time("invoice_date_due")),
			"ref":              rec.String("ref"),
			"narration":        rec.String("narration"),
			"lines":            []Line{},
			"state":            rec.String("state"),
			"payment_state":    rec.String("payment_state"),
			"amount_total":     rec.Float("amount_total"),
			"amount_residual":  rec.Float("amount_residual"),
		}
	},
	ToValues: func(v map[string]any) map[string]any {
		return map[string]any{
			"move_type":        str(v, "move_type"),
			"partner_id":       integer(v, "partner_id"),
			"invoice_date":     orFalse(str(v, "invoice_date")),
			"invoice_date_due": orFalse(str(v, "invoice_date_due")),
			"ref":              orFalse(strings.TrimSpace(str(v, "ref"))),
			"narration":        orFalse(str(v, "narration")),
		}
	},
	Lines: invoiceLines,
	Lookups: map[string]LookupSpec{
		"partner_id": {
			Target:       "partner_id",
			NameField:    "partner_name",
			Model:        "res.partner",
			Fields:       []Field{F("name", KindString), F("vat", KindString)},
			SearchFields: []string{"name", "vat"},
			MinLength:    LookupMinLength,
			Limit:        LookupLimit,
			Quiescence:   LookupQuiescence,
		},
	},
	Created:    "Fatura oluşturuldu.",
	Updated:    "Fatura güncellendi.",
	LoadFailed: "Fatura yüklenirken hata oluştu.",
	SaveFailed: "Kaydetme sırasında hata oluştu.",
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(query.DateLayout)
}
