package entity

import (
	"encoding/json"
	"fmt"
)

// Line is an editable document line (for example an invoice line).
type Line struct {
	ID          int64   `json:"id,omitempty"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	PriceUnit   float64 `json:"price_unit"`
	Discount    float64 `json:"discount"`
	TaxIDs      []int64 `json:"tax_ids,omitempty"`
}

// Amount is quantity × unit price less the percentage discount.
func (l Line) Amount() float64 {
	base := l.Quantity * l.PriceUnit
	return base - base*(l.Discount/100)
}

// LinesTotal sums the amounts of lines.
func LinesTotal(lines []Line) float64 {
	var total float64
	for _, l := range lines {
		total += l.Amount()
	}
	return total
}

// LineCommands encodes lines as one2many write commands. Lines carrying the id of
// a previously loaded line are updated (1), new lines are created (0) and loaded
// lines that disappeared are deleted (2).
func LineCommands(lines []Line, loaded []int64, encode func(Line) map[string]any) []any {
	known := make(map[int64]bool, len(loaded))
	for _, id := range loaded {
		known[id] = true
	}
	kept := make(map[int64]bool, len(lines))
	cmds := make([]any, 0, len(lines)+len(loaded))
	for _, l := range lines {
		if l.ID > 0 && known[l.ID] {
			kept[l.ID] = true
			cmds = append(cmds, []any{1, l.ID, encode(l)})
			continue
		}
		cmds = append(cmds, []any{0, 0, encode(l)})
	}
	for _, id := range loaded {
		if !kept[id] {
			cmds = append(cmds, []any{2, id})
		}
	}
	return cmds
}

func toLines(v any) ([]Line, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []Line:
		return x, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("want lines: %w", err)
	}
	return lines, nil
}
