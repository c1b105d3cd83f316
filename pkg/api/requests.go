package api

import (
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

const maxPageSize = 100

// parsePage reads pageNumber/pageSize query params, clamping pageSize to
// maxPageSize and rejecting pageNumber < 1 (spec §8 "Boundary behaviors").
func parsePage(c *echo.Context) (pageNumber, pageSize int, err error) {
	pageNumber = 1
	pageSize = 20
	if v := c.QueryParam("pageNumber"); v != "" {
		pageNumber, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, errs.New(errs.BadRequest, "invalid pageNumber")
		}
	}
	if pageNumber < 1 {
		return 0, 0, errs.New(errs.BadRequest, "pageNumber must be >= 1")
	}
	if v := c.QueryParam("pageSize"); v != "" {
		pageSize, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, errs.New(errs.BadRequest, "invalid pageSize")
		}
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageNumber, pageSize, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func queryIntDefault(c *echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryInt64Default(c *echo.Context, key string, def int64) int64 {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func queryBool(c *echo.Context, key string) bool {
	v := c.QueryParam(key)
	return v == "true" || v == "1"
}
