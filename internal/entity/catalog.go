package entity

var modules = []*Schema{Customers, Products, Sales, Invoices, StockLevels, StockMoves}

// Modules returns the list schemas in menu order.
func Modules() []*Schema {
	out := make([]*Schema, len(modules))
	copy(out, modules)
	return out
}

// Lookup returns the schema registered for module.
func Lookup(module string) (*Schema, bool) {
	for _, s := range modules {
		if s.Module == module {
			return s, true
		}
	}
	return nil, false
}
