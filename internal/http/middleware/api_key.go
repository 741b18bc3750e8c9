package middleware

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/esim-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

const (
	ctxCustomerID  = "customer_id"
	ctxCustomerRPS = "customer_rps"
)

// CustomerIDFromCtx extracts authenticated customer_id set by APIKeyMiddleware.
func CustomerIDFromCtx(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxCustomerID).(int64)
	return id, ok
}

// SetCustomerID stores the authenticated customer on the request context.
func SetCustomerID(c echo.Context, id int64) { c.Set(ctxCustomerID, id) }

// APIKeyMiddleware authenticates requests using X-API-Key header.
// On success it stores customer_id in context; suspended resellers are rejected.
func APIKeyMiddleware(customers repository.CustomersRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			cu, err := customers.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				c.Logger().Errorf("api key lookup failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if cu == nil || !cu.Active() {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			SetCustomerID(c, cu.ID)
			if cu.RateLimitRPS != nil {
				c.Set(ctxCustomerRPS, *cu.RateLimitRPS)
			}
			return next(c)
		}
	}
}
