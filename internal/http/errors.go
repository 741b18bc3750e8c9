package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	echo "github.com/labstack/echo/v4"
)

func isUpstream(err error) bool {
	var apiErr *esimaccess.APIError
	var httpErr *esimaccess.HTTPError
	return errors.Is(err, esimaccess.ErrCircuitOpen) ||
		errors.As(err, &apiErr) ||
		errors.As(err, &httpErr)
}

// upstreamFailure maps provider failures to gateway responses. Provider
// error codes are passed through unmodified.
func upstreamFailure(c echo.Context, err error) error {
	var apiErr *esimaccess.APIError
	switch {
	case errors.Is(err, esimaccess.ErrCircuitOpen):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "upstream unavailable"})
	case errors.As(err, &apiErr):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error":   "upstream_rejected",
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "upstream timeout"})
	default:
		c.Logger().Errorf("upstream call failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "upstream error"})
	}
}

// pageParams parses limit/offset with the defaults used by every list route.
func pageParams(c echo.Context) (limit, offset int) {
	limit = 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
