package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/http/middleware"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// usageReportHandler lists usage snapshots recorded by the usage poller.
func usageReportHandler(chRepo repository.CHUsageRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		custID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || custID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit, offset := pageParams(c)

		var since time.Time
		if raw := strings.TrimSpace(c.QueryParam("since")); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			}
			since = t
		}

		rows, err := chRepo.ListByCustomer(
			c.Request().Context(),
			custID,
			strings.TrimSpace(c.QueryParam("esim_tran_no")),
			since,
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
