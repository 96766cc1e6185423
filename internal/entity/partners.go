package entity

import (
	"strings"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

// Customers lists partners that are customers, suppliers or both.
var Customers = &Schema{
	Module: "customers",
	Model:  "res.partner",
	Title:  "Cariler",
	Fields: []Field{
		F("name", KindString),
		F("vat", KindString),
		F("phone", KindString),
		F("email", KindString),
		F("city", KindString),
		F("is_company", KindBool),
		F("customer_rank", KindInt),
		F("supplier_rank", KindInt),
		F("commercial_partner_id", KindMany2One),
	},
	Order: "name asc",
	Limit: 20,
	Query: query.Spec{
		Base:         query.And(query.Cond("active", query.OpEq, true)),
		SearchFields: []string{"name", "vat", "phone"},
		Filters: []query.Refinement{
			{ID: "all", Label: "Hepsi", Where: query.Static(query.Any(
				query.T("customer_rank", query.OpGt, 0),
				query.T("supplier_rank", query.OpGt, 0),
			))},
			{ID: "customers", Label: "Müşteriler", Where: query.Static(query.Cond("customer_rank", query.OpGt, 0))},
			{ID: "suppliers", Label: "Tedarikçiler", Where: query.Static(query.Cond("supplier_rank", query.OpGt, 0))},
		},
		DefaultFilter: "all",
	},
	LoadError: "Cariler yüklenirken hata oluştu.",
	Row:       partnerRow,
	Form:      customerForm,
}

// PartnerBadge classifies a partner by its customer and supplier ranks.
func PartnerBadge(rec Record) Badge {
	isCustomer := rec.Int("customer_rank") > 0
	isSupplier := rec.Int("supplier_rank") > 0
	switch {
	case isCustomer && isSupplier:
		return Badge{Label: "Müşteri + Tedarikçi", Class: "ms-badge--purple"}
	case isCustomer:
		return Badge{Label: "Müşteri", Class: "ms-badge--success"}
	case isSupplier:
		return Badge{Label: "Tedarikçi", Class: "ms-badge--info"}
	}
	return Badge{Label: "Diğer", Class: "ms-badge--muted"}
}

func partnerRow(rec Record, _ Formatter) Row {
	return Row{
		"id":         rec.ID(),
		"name":       rec.String("name"),
		"vat":        rec.String("vat"),
		"phone":      rec.String("phone"),
		"email":      rec.String("email"),
		"city":       rec.String("city"),
		"is_company": rec.Bool("is_company"),
		"badge":      PartnerBadge(rec),
	}
}

var customerForm = &FormSpec{
	Model: "res.partner",
	ReadFields: []Field{
		F("name", KindString),
		F("is_company", KindBool),
		F("vat", KindString),
		F("phone", KindString),
		F("mobile", KindString),
		F("email", KindString),
		F("street", KindString),
		F("city", KindString),
		F("zip", KindString),
		F("customer_rank", KindInt),
		F("supplier_rank", KindInt),
		F("comment", KindString),
	},
	Fields: []Field{
		F("name", KindString),
		F("is_company", KindBool),
		F("vat", KindString),
		F("phone", KindString),
		F("mobile", KindString),
		F("email", KindString),
		F("street", KindString),
		F("city", KindString),
		F("zip", KindString),
		F("is_customer", KindBool),
		F("is_supplier", KindBool),
		F("comment", KindString),
	},
	Defaults: func(time.Time, map[string]string) map[string]any {
		return map[string]any{
			"name":        "",
			"is_company":  true,
			"vat":         "",
			"phone":       "",
			"mobile":      "",
			"email":       "",
			"street":      "",
			"city":        "",
			"zip":         "",
			"is_customer": true,
			"is_supplier": false,
			"comment":     "",
		}
	},
	Rules: map[string]any{
		"name": "required",
	},
	Messages: map[string]string{
		"name": "Cari adı zorunludur.",
	},
	FromRecord: func(rec Record) map[string]any {
		isCompany := true
		if rec.Has("is_company") {
			isCompany = rec.Bool("is_company")
		}
		return map[string]any{
			"name":        rec.String("name"),
			"is_company":  isCompany,
			"vat":         rec.String("vat"),
			"phone":       rec.String("phone"),
			"mobile":      rec.String("mobile"),
			"email":       rec.String("email"),
			"street":      rec.String("street"),
			"city":        rec.String("city"),
			"zip":         rec.String("zip"),
			"is_customer": rec.Int("customer_rank") > 0,
			"is_supplier": rec.Int("supplier_rank") > 0,
			"comment":     rec.String("comment"),
		}
	},
	ToValues: func(v map[string]any) map[string]any {
		return map[string]any{
			"name":          strings.TrimSpace(str(v, "name")),
			"is_company":    boolean(v, "is_company"),
			"vat":           orFalse(str(v, "vat")),
			"phone":         orFalse(str(v, "phone")),
			"mobile":        orFalse(str(v, "mobile")),
			"email":         orFalse(str(v, "email")),
			"street":        orFalse(str(v, "street")),
			"city":          orFalse(str(v, "city")),
			"zip":           orFalse(str(v, "zip")),
			"comment":       orFalse(str(v, "comment")),
			"customer_rank": rank(boolean(v, "is_customer")),
			"supplier_rank": rank(boolean(v, "is_supplier")),
		}
	},
	Created:    "Cari oluşturuldu.",
	Updated:    "Cari güncellendi.",
	LoadFailed: "Cari yüklenirken hata oluştu.",
	SaveFailed: "Kaydetme sırasında hata oluştu.",
}
