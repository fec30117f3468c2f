// Package pagination implements page/limit query handling shared by all list
// endpoints: limit is clamped to [1,100], page has a minimum of 1, and list
// responses carry {page, limit, total, totalPages} metadata.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// FromContext extracts page/limit from the echo context, applying defaults
// and clamping out-of-range values.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Meta is the pagination block returned alongside a page of results.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewMeta computes response metadata for a page.
func NewMeta(p Params, total int) Meta {
	totalPages := total / p.Limit
	if total%p.Limit != 0 {
		totalPages++
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: totalPages}
}
