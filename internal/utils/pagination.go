package utils

import (
	"strconv" // Query parsing

	"github.com/gin-gonic/gin"
)

const (
	DefaultPageSize = 20  // Used when page_size is absent or invalid
	MaxPageSize     = 100 // Hard upper bound for page_size
)

// Page is a normalised page request
type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Offset of the first row of the page
func (p Page) Offset() int { return (p.Page - 1) * p.PageSize }

// NewPage clamps page and size to sane values
func NewPage(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Page: page, PageSize: size}
}

// PageFromQuery reads page and page_size from the query string
func PageFromQuery(c *gin.Context) Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	return NewPage(page, size)
}
