package entity

// Reference lists offered as selections in forms.
var (
	Categories = OptionSpec{
		Name:   "categories",
		Model:  "product.category",
		Order:  "complete_name asc",
		Fields: []Field{F("name", KindString), F("complete_name", KindString)},
	}
	Warehouses = OptionSpec{
		Name:   "warehouses",
		Model:  "stock.warehouse",
		Order:  "name asc",
		Fields: []Field{F("name", KindString)},
	}
)

// OptionsFrom converts option records, preferring the full hierarchical name.
func OptionsFrom(records []Record) []Option {
	out := make([]Option, 0, len(records))
	for _, rec := range records {
		name := rec.String("complete_name")
		if name == "" {
			name = rec.String("name")
		}
		out = append(out, Option{ID: rec.ID(), Name: name})
	}
	return out
}

// LookupOption returns the option list named name.
func LookupOption(name string) (OptionSpec, bool) {
	for _, o := range []OptionSpec{Categories, Warehouses} {
		if o.Name == name {
			return o, true
		}
	}
	return OptionSpec{}, false
}
