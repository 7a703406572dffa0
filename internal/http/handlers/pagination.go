package handlers

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

func parsePageParam(c *echo.Context) int {
	return parsePositiveParam(c, "page", 1)
}

func parsePerPageParam(c *echo.Context) int {
	perPage := parsePositiveParam(c, "per_page", defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return perPage
}

func parsePositiveParam(c *echo.Context, name string, fallback int) int {
	if raw := strings.TrimSpace(c.QueryParam(name)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func paginate(totalCount int64, page, perPage int) (int, int, int) {
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}
	denom := int64(perPage)
	totalPages := int((totalCount + denom - 1) / denom)
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	offset := (page - 1) * perPage
	return page, totalPages, offset
}
