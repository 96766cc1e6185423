package entity

import (
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

// Thresholds and timings shared by the modules.
const (
	LowStockThreshold = 5
	SearchQuiescence  = 400 * time.Millisecond
	LookupQuiescence  = 300 * time.Millisecond
	LookupMinLength   = 2
	LookupLimit       = 8
)

// Badge is a short status label with a style class.
type Badge struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

// Row is the display projection of one list record.
type Row map[string]any

// Schema drives a list view for one module.
type Schema struct {
	Module string
	Model  string
	Title  string
	Fields []Field
	Order  string
	Limit  int
	// Context is forwarded to the record store with every fetch.
	Context map[string]any
	Query   query.Spec
	// Silent modules log load failures without notifying the user.
	Silent    bool
	LoadError string
	Summary   *SummarySpec
	Row       func(Record, Formatter) Row
	Form      *FormSpec
}

// FieldNames lists the fetched backend fields.
func (s *Schema) FieldNames() []string {
	return Names(s.Fields)
}

// SummarySpec declares extra counts loaded next to a list page. TotalKey, when
// set, reports the page's own total (search and filter applied).
type SummarySpec struct {
	TotalKey string
	Counts   []SummaryCount
}

// SummaryCount is one named count over a fixed expression.
type SummaryCount struct {
	Key   string
	Where query.Expr
}

// FormSpec drives a form controller for one module.
type FormSpec struct {
	Model string
	// ReadFields are read from the backend when editing an existing record.
	ReadFields  []Field
	ReadContext map[string]any
	// Fields are the view-level fields and their kinds.
	Fields []Field
	// Defaults returns the initial values of a new record. params carries
	// creation hints such as the invoice move type.
	Defaults func(now time.Time, params map[string]string) map[string]any
	// Rules are go-playground/validator tags keyed by view field.
	Rules    map[string]any
	Messages map[string]string
	// FromRecord maps a loaded backend record to view values.
	FromRecord func(Record) map[string]any
	// ToValues maps view values to backend field values.
	ToValues func(values map[string]any) map[string]any
	Lines    *LineSpec
	Lookups  map[string]LookupSpec

	Created    string
	Updated    string
	LoadFailed string
	SaveFailed string
}

// Field returns the view field named name.
func (f *FormSpec) Field(name string) (Field, bool) {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld, true
		}
	}
	return Field{}, false
}

// LineSpec describes a one2many line collection edited inside a form.
type LineSpec struct {
	// ViewField holds []Line in the form values.
	ViewField string
	// Field is the backend one2many field on the parent model.
	Field      string
	Model      string
	ReadFields []Field
	FromRecord func(Record) Line
	Encode     func(Line) map[string]any
}

// LookupSpec describes a debounced many-to-one autocomplete.
type LookupSpec struct {
	// Target is the view field receiving the selected id; NameField its label.
	Target       string
	NameField    string
	Model        string
	Fields       []Field
	SearchFields []string
	MinLength    int
	Limit        int
	Quiescence   time.Duration
}

// Option is an entry of a selection list.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// OptionSpec describes a small reference list (categories, warehouses).
type OptionSpec struct {
	Name   string
	Model  string
	Order  string
	Fields []Field
}

func orFalse(s string) any {
	if s == "" {
		return false
	}
	return s
}

func idOrFalse(id int64) any {
	if id == 0 {
		return false
	}
	return id
}

func str(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

func boolean(values map[string]any, key string) bool {
	b, _ := values[key].(bool)
	return b
}

func numeric(values map[string]any, key string) float64 {
	switch x := values[key].(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}

func integer(values map[string]any, key string) int64 {
	switch x := values[key].(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	}
	return 0
}

func rank(flag bool) int {
	if flag {
		return 1
	}
	return 0
}
