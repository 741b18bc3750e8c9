package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/esim-gateway/internal/http/middleware"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/orders"
	echo "github.com/labstack/echo/v4"
)

type orderReq struct {
	PackageCode string `json:"package_code"`
	Count       int    `json:"count"`
}

// orderFailure maps Enqueue/Topup errors to responses.
func orderFailure(c echo.Context, custID int64, err error) error {
	switch {
	case errors.Is(err, orders.ErrInvalidCount):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid count"})
	case errors.Is(err, orders.ErrUnknownPackage):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "unknown package"})
	case errors.Is(err, orders.ErrInsufficientFunds):
		return c.JSON(http.StatusPaymentRequired, map[string]any{
			"error":       "insufficient_funds",
			"description": "wallet balance is not enough to reserve the order cost",
			"customer_id": strconv.FormatInt(custID, 10),
		})
	case isUpstream(err), errors.Is(err, orders.ErrUpstream):
		return upstreamFailure(c, err)
	default:
		c.Logger().Errorf("order failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
	}
}

func createOrderHandler(svc Orders) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req orderReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.PackageCode = strings.TrimSpace(req.PackageCode)
		if req.PackageCode == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.Count == 0 {
			req.Count = 1
		}

		custID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || custID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		// wallet reserve + ledger(reserve) + orders + outbox in one TX
		o, err := svc.Enqueue(c.Request().Context(), custID, orders.OrderInput{
			PackageCode: req.PackageCode,
			Count:       req.Count,
		})
		if err != nil {
			return orderFailure(c, custID, err)
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"enqueued":     true,
			"id":           o.ID,
			"package_code": o.PackageCode,
			"count":        o.Count,
			"amount":       o.Amount,
			"customer_id":  strconv.FormatInt(custID, 10),
		})
	}
}

func getOrderHandler(svc Orders, profiles repository.ProfilesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		custID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || custID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		o, err := svc.Get(c.Request().Context(), custID, c.Param("id"))
		if errors.Is(err, orders.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "order not found"})
		}
		if err != nil {
			c.Logger().Errorf("get order failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		esims := []model.ESIMProfile{}
		if o.Status == model.OrderPlaced {
			rows, err := profiles.ListByOrder(c.Request().Context(), o.ID)
			if err != nil {
				c.Logger().Errorf("list order profiles failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			if rows != nil {
				esims = rows
			}
		}

		return c.JSON(http.StatusOK, map[string]any{
			"order": o,
			"esims": esims,
		})
	}
}

func listOrdersHandler(svc Orders) echo.HandlerFunc {
	return func(c echo.Context) error {
		custID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || custID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit, offset := pageParams(c)
		rows, err := svc.List(c.Request().Context(), custID, limit, offset)
		if err != nil {
			c.Logger().Errorf("list orders failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
