// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating query
// parameters. Invalid values become validation errors naming the parameter.

package http

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/core"
	"wealthywise/internal/services"
	"wealthywise/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	maxHistoryMonths = 24
)

// queryDate parses an optional YYYY-MM-DD parameter.
func queryDate(c *gin.Context, key string) (*core.Date, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, core.Invalid(key, core.ErrInvalidDate)
	}
	return &d, nil
}

// queryMonth parses an optional YYYY-MM parameter into the month's first day.
func queryMonth(c *gin.Context, key string) (*core.Date, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseMonth(v)
	if err != nil {
		return nil, core.Invalid(key, core.ErrInvalidMonth)
	}
	return &d, nil
}

// queryInt parses an optional integer parameter within [min, max].
func queryInt(c *gin.Context, key string, def, min, max int) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, core.Invalid(key, errOutOfRange(min, max))
	}
	return n, nil
}

// queryBool treats "1", "true" and friends as true; anything else is false.
func queryBool(c *gin.Context, key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && b
}

type rangeError struct{ min, max int }

func (e rangeError) Error() string {
	return "must be an integer between " + strconv.Itoa(e.min) + " and " + strconv.Itoa(e.max)
}

func errOutOfRange(min, max int) error { return rangeError{min: min, max: max} }

// parseTransactionFilter reads the listing filters. "to" is inclusive.
func parseTransactionFilter(c *gin.Context) (storage.TransactionFilter, error) {
	var f storage.TransactionFilter
	f.Touching = strings.TrimSpace(c.Query("account_id"))

	if v := strings.TrimSpace(c.Query("type")); v != "" {
		f.Type = core.TransactionType(v)
		if !f.Type.IsValid() {
			return f, core.Invalid("type", core.ErrInvalidType)
		}
	}
	if v := strings.TrimSpace(c.Query("category")); v != "" {
		f.Category = core.Category(v)
		if !f.Category.IsValid() {
			return f, core.Invalid("category", core.ErrInvalidCategory)
		}
	}

	from, err := queryDate(c, "from")
	if err != nil {
		return f, err
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return f, err
	}
	f.From = from
	if to != nil {
		until := core.Date{Time: to.AddDate(0, 0, 1)}
		f.Until = &until
	}

	f.Limit, err = queryInt(c, "limit", defaultListLimit, 1, maxListLimit)
	return f, err
}

// parseSummaryRange reads the optional inclusive from/to bounds.
func parseSummaryRange(c *gin.Context) (services.SummaryRange, error) {
	from, err := queryDate(c, "from")
	if err != nil {
		return services.SummaryRange{}, err
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return services.SummaryRange{}, err
	}
	return services.SummaryRange{From: from, To: to}, nil
}
