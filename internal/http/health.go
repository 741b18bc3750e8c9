package http

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
)

const readyTimeout = 3 * time.Second

func healthzHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

// readyzHandler probes the provider with a signed balance query, which
// also proves the configured credentials are accepted.
func readyzHandler(p Prober) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
		defer cancel()

		if _, err := p.Balance(ctx); err != nil {
			c.Logger().Warnf("readiness probe failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"upstream": err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready", "upstream": "ok"})
	}
}
