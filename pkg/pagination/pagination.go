package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Params is a 1-based page request.
type Params struct {
	Page     int
	PageSize int
}

// Limits configures page size defaults; zero values fall back to the
// package defaults.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) normalize() Limits {
	if l.Default <= 0 {
		l.Default = DefaultPageSize
	}
	if l.Max <= 0 {
		l.Max = MaxPageSize
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

// FromContext reads ?page= and ?page_size=. Invalid values fall back to
// defaults; page_size is capped at the maximum.
func FromContext(c echo.Context, l Limits) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("page_size"), l)
}

func Parse(page, pageSize string, l Limits) Params {
	l = l.normalize()
	p, _ := strconv.Atoi(page)
	if p < 1 {
		p = 1
	}
	size, _ := strconv.Atoi(pageSize)
	if size <= 0 {
		size = l.Default
	}
	if size > l.Max {
		size = l.Max
	}
	return Params{Page: p, PageSize: size}
}

func (p Params) Offset() int { return (p.Page - 1) * p.PageSize }

func (p Params) Limit() int { return p.PageSize }

func (p Params) HasNext(total int) bool { return p.Offset()+p.PageSize < total }

// Slice returns the requested page of items.
func Slice[T any](items []T, p Params) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Body renders a list response under a named key, e.g. {"patients": [...]}.
func Body(key string, items any, total int, p Params) map[string]any {
	return map[string]any{
		key:         items,
		"count":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
		"has_next":  p.HasNext(total),
	}
}
