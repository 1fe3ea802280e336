package pagination

import (
	"math"
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps the offset within int at any limit.
	MaxPage = math.MaxInt / MaxLimit
)

// Params holds offset pagination parsed from the page and limit query
// parameters.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New normalizes page and limit: page < 1 becomes 1, page > MaxPage is
// capped, limit < 1 becomes DefaultLimit and limit > MaxLimit is capped.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// FromRequest reads page and limit from the query string. Missing or
// non-numeric values fall back to the defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	return New(atoi(q.Get("page")), atoi(q.Get("limit")))
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// Meta describes one page of a result set.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewMeta computes the page count for total rows.
func NewMeta(p Params, total int) Meta {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
