package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads page and limit query params with sane defaults.
// Non-numeric or non-positive values fall back to the defaults.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(c.Query("page"), c.Query("limit"))
}

// NewPagination builds a Pagination from raw query values.
func NewPagination(pageValue, limitValue string) Pagination {
	page := parseInt(pageValue, 1)
	limit := parseInt(limitValue, defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if page <= 0 {
		page = 1
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
