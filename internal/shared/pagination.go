package shared

import "math"

// DefaultPerPage is used when a limit is missing or invalid.
const DefaultPerPage = 20

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	Start      int  `json:"start"`
	End        int  `json:"end"`
	HasPrev    bool `json:"has_prev"`
	HasNext    bool `json:"has_next"`
}

// NewPagination computes pagination metadata for a 1-based page.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	p := Pager{offset: (page - 1) * perPage, limit: perPage, total: total}
	return p.Pagination()
}

// Pager tracks the offset of a list over a known total. The offset is always a
// multiple of the limit.
type Pager struct {
	offset int
	limit  int
	total  int
}

// NewPager returns a pager positioned on the first page.
func NewPager(limit int) *Pager {
	if limit <= 0 {
		limit = DefaultPerPage
	}
	return &Pager{limit: limit}
}

// Offset returns the index of the first visible record.
func (p *Pager) Offset() int { return p.offset }

// Limit returns the page size.
func (p *Pager) Limit() int { return p.limit }

// Total returns the last known record count.
func (p *Pager) Total() int { return p.total }

// Next moves one page forward. It reports false and leaves the offset alone on
// the last page.
func (p *Pager) Next() bool {
	if p.offset+p.limit >= p.total {
		return false
	}
	p.offset += p.limit
	return true
}

// Prev moves one page back, never below the first page.
func (p *Pager) Prev() bool {
	if p.offset == 0 {
		return false
	}
	p.offset -= p.limit
	if p.offset < 0 {
		p.offset = 0
	}
	return true
}

// Reset returns to the first page.
func (p *Pager) Reset() { p.offset = 0 }

// SetTotal records a fresh count. When the list shrank so far that the current
// page is past the end, the offset moves to the last page start and SetTotal
// reports true. An empty list always sits on the first page.
func (p *Pager) SetTotal(total int) bool {
	if total <= 0 {
		p.total, p.offset = 0, 0
		return false
	}
	p.total = total
	if p.offset >= total {
		p.offset = (total - 1) / p.limit * p.limit
		return true
	}
	return false
}

// Page returns the 1-based current page.
func (p *Pager) Page() int { return p.offset/p.limit + 1 }

// TotalPages returns the page count, at least 1.
func (p *Pager) TotalPages() int {
	pages := int(math.Ceil(float64(p.total) / float64(p.limit)))
	if pages < 1 {
		return 1
	}
	return pages
}

// Start is the 1-based position of the first visible record.
func (p *Pager) Start() int { return p.offset + 1 }

// End is the 1-based position of the last visible record.
func (p *Pager) End() int {
	return min(p.offset+p.limit, p.total)
}

// Pagination snapshots the derived values.
func (p *Pager) Pagination() Pagination {
	return Pagination{
		Page:       p.Page(),
		PerPage:    p.limit,
		Total:      p.total,
		TotalPages: p.TotalPages(),
		Start:      p.Start(),
		End:        p.End(),
		HasPrev:    p.offset > 0,
		HasNext:    p.offset+p.limit < p.total,
	}
}
