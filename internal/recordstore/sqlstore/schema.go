package sqlstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mobilsoft/backoffice/internal/query"
)

// Type is the storage type of a column.
type Type int

const (
	Text Type = iota + 1
	Int
	Float
	Bool
	Date
	DateTime
	// Ref is a many-to-one id column rendered as an [id, name] pair.
	Ref
	// One2Many is a virtual column backed by child rows pointing back at the parent.
	One2Many
	// JSON stores an arbitrary value (for example a many-to-many id list) as text.
	JSON
)

// Column maps an ERP field to storage.
type Column struct {
	Type Type
	// Target is the referenced model of a Ref or the child model of a One2Many.
	Target string
	// Inverse is the Ref column on the child model of a One2Many.
	Inverse string
	// Default is a SQL literal used in the generated DDL.
	Default string
}

// Table maps one ERP model.
type Table struct {
	Model   string
	Columns map[string]Column
	// AfterWrite recomputes derived columns of the written rows.
	AfterWrite func(w *writer, ids []int64) error
}

// Name is the SQL table name.
func (t *Table) Name() string {
	return strings.ReplaceAll(t.Model, ".", "_")
}

func (t *Table) names() []string {
	out := make([]string, 0, len(t.Columns))
	for name, col := range t.Columns {
		if col.Type == One2Many {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Catalog is a set of table mappings keyed by model.
type Catalog map[string]*Table

// NewCatalog indexes tables by model.
func NewCatalog(tables ...*Table) Catalog {
	c := make(Catalog, len(tables))
	for _, t := range tables {
		c[t.Model] = t
	}
	return c
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// DDL renders CREATE TABLE statements for every table in model order.
func (c Catalog) DDL(d query.Dialect) []string {
	models := make([]string, 0, len(c))
	for m := range c {
		models = append(models, m)
	}
	sort.Strings(models)

	stmts := make([]string, 0, len(models))
	for _, m := range models {
		t := c[m]
		cols := []string{"id " + idType(d)}
		for _, name := range t.names() {
			col := t.Columns[name]
			def := quote(name) + " " + sqlType(d, col.Type)
			if col.Default != "" {
				def += " DEFAULT " + col.Default
			}
			cols = append(cols, def)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(t.Name()), strings.Join(cols, ",\n\t")))
	}
	return stmts
}

func idType(d query.Dialect) string {
	if d.Name == query.Postgres.Name {
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func sqlType(d query.Dialect, t Type) string {
	pg := d.Name == query.Postgres.Name
	switch t {
	case Int, Ref:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case Float:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case Bool:
		if pg {
			return "BOOLEAN"
		}
		return "INTEGER"
	}
	// Dates are kept in the ERP wire format so string comparisons in filter
	// expressions order correctly.
	return "TEXT"
}

func text() Column { return Column{Type: Text} }

func textDefault(lit string) Column { return Column{Type: Text, Default: lit} }

func number() Column { return Column{Type: Float, Default: "0"} }

func integer() Column { return Column{Type: Int, Default: "0"} }

func flag(def bool) Column {
	if def {
		return Column{Type: Bool, Default: "TRUE"}
	}
	return Column{Type: Bool, Default: "FALSE"}
}

func ref(target string) Column { return Column{Type: Ref, Target: target} }

// DefaultCatalog maps the ERP models the console works with.
func DefaultCatalog() Catalog {
	return NewCatalog(
		&Table{Model: "res.company", Columns: map[string]Column{"name": text()}},
		&Table{Model: "res.partner", Columns: map[string]Column{
			"name":                  textDefault("''"),
			"is_company":            flag(true),
			"vat":                   text(),
			"phone":                 text(),
			"mobile":                text(),
			"email":                 text(),
			"street":                text(),
			"city":                  text(),
			"zip":                   text(),
			"comment":               text(),
			"customer_rank":         integer(),
			"supplier_rank":         integer(),
			"active":                flag(true),
			"commercial_partner_id": ref("res.partner"),
		}},
		&Table{Model: "product.category", Columns: map[string]Column{
			"name":          text(),
			"complete_name": text(),
		}},
		&Table{Model: "uom.uom", Columns: map[string]Column{"name": text()}},
		&Table{Model: "product.template", Columns: map[string]Column{
			"name":             textDefault("''"),
			"barcode":          text(),
			"list_price":       number(),
			"standard_price":   number(),
			"categ_id":         ref("product.category"),
			"qty_available":    number(),
			"type":             textDefault("'consu'"),
			"active":           flag(true),
			"description_sale": text(),
		}},
		&Table{Model: "product.product", Columns: map[string]Column{
			"name":              textDefault("''"),
			"barcode":           text(),
			"qty_available":     number(),
			"virtual_available": number(),
			"categ_id":          ref("product.category"),
			"type":              textDefault("'consu'"),
			"uom_id":            ref("uom.uom"),
			"standard_price":    number(),
			"list_price":        number(),
			"active":            flag(true),
		}},
		&Table{Model: "sale.order", Columns: map[string]Column{
			"name":           textDefault("'/'"),
			"date_order":     {Type: DateTime},
			"partner_id":     ref("res.partner"),
			"amount_total":   number(),
			"state":          textDefault("'draft'"),
			"invoice_status": text(),
		}},
		&Table{
			Model: "account.move",
			Columns: map[string]Column{
				"name":             textDefault("'/'"),
				"move_type":        textDefault("'out_invoice'"),
				"partner_id":       ref("res.partner"),
				"invoice_date":     {Type: Date},
				"invoice_date_due": {Type: Date},
				"ref":              text(),
				"narration":        text(),
				"state":            textDefault("'draft'"),
				"payment_state":    textDefault("'not_paid'"),
				"amount_total":     number(),
				"amount_residual":  number(),
				"invoice_line_ids": {Type: One2Many, Target: "account.move.line", Inverse: "move_id"},
			},
			AfterWrite: recomputeMoveTotals,
		},
		&Table{Model: "account.move.line", Columns: map[string]Column{
			"move_id":    ref("account.move"),
			"product_id": ref("product.product"),
			"name":       text(),
			"quantity":   Column{Type: Float, Default: "1"},
			"price_unit": number(),
			"discount":   number(),
			"tax_ids":    {Type: JSON},
		}},
		&Table{Model: "stock.picking.type", Columns: map[string]Column{"name": text()}},
		&Table{Model: "stock.picking", Columns: map[string]Column{
			"name":            textDefault("'/'"),
			"picking_type_id": ref("stock.picking.type"),
			"partner_id":      ref("res.partner"),
			"origin":          text(),
			"scheduled_date":  {Type: DateTime},
			"date_done":       {Type: DateTime},
			"state":           textDefault("'draft'"),
			"move_type":       textDefault("'direct'"),
		}},
		&Table{Model: "stock.warehouse", Columns: map[string]Column{"name": text()}},
		&Table{Model: "pos.config", Columns: map[string]Column{
			"name":               text(),
			"active":             flag(true),
			"current_session_id": Column{Type: Int},
		}},
	)
}

// recomputeMoveTotals derives the invoice total from its lines. Unpaid drafts
// owe the full amount.
func recomputeMoveTotals(w *writer, ids []int64) error {
	for _, id := range ids {
		lines, err := w.query(w.ctx,
			fmt.Sprintf(`SELECT "quantity", "price_unit", "discount" FROM "account_move_line" WHERE "move_id" = %s`, w.dialect.Placeholder(1)),
			id)
		if err != nil {
			return err
		}
		var total float64
		for _, l := range lines {
			qty, price, disc := asFloat(l["quantity"]), asFloat(l["price_unit"]), asFloat(l["discount"])
			total += qty * price * (1 - disc/100)
		}
		stmt := fmt.Sprintf(
			`UPDATE "account_move" SET "amount_total" = %s, "amount_residual" = CASE WHEN "payment_state" = 'paid' THEN 0 ELSE %s END WHERE id = %s`,
			w.dialect.Placeholder(1), w.dialect.Placeholder(2), w.dialect.Placeholder(3))
		if _, err := w.exec(w.ctx, stmt, total, total, id); err != nil {
			return err
		}
	}
	return nil
}
