package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// PaginationMeta places one page within the full result set.
type PaginationMeta struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// PaginatedResponse wraps a page of results together with its metadata.
type PaginatedResponse[T any] struct {
	Data []T            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// NewPaginatedResponse derives the page count from the total and wraps data.
func NewPaginatedResponse[T any](data []T, total int64, page, limit int) PaginatedResponse[T] {
	if limit <= 0 {
		limit = 1
	}
	return PaginatedResponse[T]{
		Data: data,
		Meta: PaginationMeta{
			TotalItems:  total,
			TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
			CurrentPage: page,
			PageSize:    limit,
		},
	}
}

// pageParams reads the page and limit query parameters, clamping page to 1
// and falling back to defaultLimit when limit is missing or out of range.
func pageParams(c *gin.Context, defaultLimit int) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}
