package database

import "gorm.io/gorm"

const PerPage = 10

// Page is one page of a listing, in the shape the frontend tables expect.
type Page[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	LastPage int   `json:"last_page"`
}

func NewPage[T any](data []T, total int64, page int) Page[T] {
	if data == nil {
		data = []T{}
	}
	last := int((total + PerPage - 1) / PerPage)
	if last < 1 {
		last = 1
	}
	return Page[T]{Data: data, Total: total, Page: normalizePage(page), PerPage: PerPage, LastPage: last}
}

// Paginate applies LIMIT/OFFSET for a 1-based page number.
func Paginate(page int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((normalizePage(page) - 1) * PerPage).Limit(PerPage)
	}
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
