// Package utils holds small helpers shared by the HTTP and service layers.
package utils

import "strconv"

// Page size bounds applied to every listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Window is a bounded, 1-based page of a listing.
type Window struct {
	Page int
	Size int
}

// NewWindow bounds page to at least 1 and size to [1, MaxPageSize]. A
// non-positive size selects DefaultPageSize.
func NewWindow(page, size int) Window {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return Window{Page: page, Size: size}
}

// ParseWindow reads page and size from raw query values. Empty or
// unparsable values fall back to the defaults before bounding.
func ParseWindow(page, size string) Window {
	return NewWindow(atoi(page, 1), atoi(size, DefaultPageSize))
}

// Offset is the number of rows preceding the window.
func (w Window) Offset() int { return (w.Page - 1) * w.Size }

// Pages is the number of windows needed to cover total rows.
func (w Window) Pages(total int64) int {
	if total <= 0 || w.Size <= 0 {
		return 0
	}
	return int((total + int64(w.Size) - 1) / int64(w.Size))
}

// HasNext reports whether rows remain after this window.
func (w Window) HasNext(total int64) bool { return w.Page < w.Pages(total) }

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
