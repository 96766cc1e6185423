package listview

import (
	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/shared"
)

// Choice is a selectable filter or type.
type Choice struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Render is the display projection of a view.
type Render struct {
	Module     string            `json:"module"`
	Title      string            `json:"title"`
	Query      QueryState        `json:"query"`
	Filters    []Choice          `json:"filters"`
	Types      []Choice          `json:"types,omitempty"`
	Rows       []entity.Row      `json:"rows"`
	Pagination shared.Pagination `json:"pagination"`
	Summary    map[string]int    `json:"summary,omitempty"`
	Loading    bool              `json:"loading"`
	Loaded     bool              `json:"loaded"`
	Error      bool              `json:"error"`
}

// Render projects the current state for display.
func (v *View) Render() Render {
	v.mu.Lock()
	state := v.stateLocked()
	result := v.result
	pagination := v.pager.Pagination()
	var summary map[string]int
	if v.summary != nil {
		summary = make(map[string]int, len(v.summary))
		for k, n := range v.summary {
			summary[k] = n
		}
	}
	loading, loaded, failed := v.loading, v.loaded, v.failed
	v.mu.Unlock()

	rows := make([]entity.Row, 0, len(result.Items))
	for _, rec := range result.Items {
		if v.schema.Row != nil {
			rows = append(rows, v.schema.Row(rec, v.format))
			continue
		}
		rows = append(rows, entity.Row{"id": rec.ID()})
	}

	return Render{
		Module:     v.schema.Module,
		Title:      v.schema.Title,
		Query:      state,
		Filters:    Choices(v.schema.Query.Filters, state.Filter),
		Types:      Choices(v.schema.Query.Types, state.Type),
		Rows:       rows,
		Pagination: pagination,
		Summary:    summary,
		Loading:    loading,
		Loaded:     loaded,
		Error:      failed,
	}
}

// Choices lists refinements, marking the active one.
func Choices(list []query.Refinement, active string) []Choice {
	if len(list) == 0 {
		return nil
	}
	out := make([]Choice, 0, len(list))
	for _, r := range list {
		out = append(out, Choice{ID: r.ID, Label: r.Label, Active: r.ID == active})
	}
	return out
}
