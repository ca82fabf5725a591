package models

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page is a 1-indexed offset/limit request.
type Page struct {
	Page  int
	Limit int
}

// NewPage builds a Page, falling back to defaultLimit and clamping limit to
// MaxPageLimit.
func NewPage(page, limit, defaultLimit int) Page {
	if page < 1 {
		page = 1
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination describes the position of a page within a result set.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
}

// Paginate computes Pagination for total rows under p.
func Paginate(total int64, p Page) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Pagination{Total: total, Page: p.Page, Pages: pages}
}
