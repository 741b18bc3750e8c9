package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/http/middleware"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/orders"
	echo "github.com/labstack/echo/v4"
)

// ownedProfile loads :tranNo for the caller. On a nil profile the response
// has already been written.
func ownedProfile(c echo.Context, profiles repository.ProfilesRepository) (*model.ESIMProfile, error) {
	custID, ok := middleware.CustomerIDFromCtx(c)
	if !ok || custID <= 0 {
		return nil, c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	tranNo := strings.TrimSpace(c.Param("tranNo"))
	if tranNo == "" {
		return nil, c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
	}

	p, err := profiles.GetForCustomer(c.Request().Context(), custID, tranNo)
	if err != nil {
		c.Logger().Errorf("profile lookup failed: %v", err)
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
	}
	if p == nil {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "esim not found"})
	}
	return p, nil
}

// listESIMsHandler queries the provider for the eSIMs of one of the caller's orders.
func listESIMsHandler(svc Orders, q Querier) echo.HandlerFunc {
	return func(c echo.Context) error {
		custID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || custID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		orderID := strings.TrimSpace(c.QueryParam("order_id"))
		if orderID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "order_id is required"})
		}

		o, err := svc.Get(c.Request().Context(), custID, orderID)
		if errors.Is(err, orders.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "order not found"})
		}
		if err != nil {
			c.Logger().Errorf("get order failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if o.ProviderNo == nil {
			return c.JSON(http.StatusConflict, map[string]string{"error": "order not placed", "status": o.Status.String()})
		}

		page := 1
		if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
			page = v
		}
		size := 20
		if v, err := strconv.Atoi(c.QueryParam("page_size")); err == nil && v > 0 && v <= 100 {
			size = v
		}

		res, err := q.QueryProfiles(c.Request().Context(), esimaccess.QueryParams{
			OrderNo: *o.ProviderNo,
			Pager:   esimaccess.Pager{PageNum: page, PageSize: size},
		})
		if err != nil {
			return upstreamFailure(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func esimUsageHandler(profiles repository.ProfilesRepository, q Querier) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := ownedProfile(c, profiles)
		if p == nil {
			return err
		}

		res, err := q.GetUsage(c.Request().Context(), []string{p.EsimTranNo})
		if err != nil {
			return upstreamFailure(c, err)
		}
		for _, u := range res.EsimUsageList {
			if u.EsimTranNo == p.EsimTranNo {
				return c.JSON(http.StatusOK, u)
			}
		}
		return c.JSON(http.StatusNotFound, map[string]string{"error": "usage not available"})
	}
}

type profileActionFunc func(ctx context.Context, a esimaccess.ProfileAction) error

// esimActionHandler forwards a lifecycle action; the provider decides
// whether it is allowed in the eSIM's current state. The local status is
// refreshed from the provider afterwards.
func esimActionHandler(name string, profiles repository.ProfilesRepository, q Querier, action profileActionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := ownedProfile(c, profiles)
		if p == nil {
			return err
		}

		ctx := c.Request().Context()
		if err := action(ctx, esimaccess.ProfileAction{EsimTranNo: p.EsimTranNo}); err != nil {
			return upstreamFailure(c, err)
		}

		status := p.Status
		if s, err := refreshStatus(ctx, profiles, q, p.EsimTranNo); err != nil {
			// the poller catches up on its next pass
			c.Logger().Warnf("status refresh after %s failed for %s: %v", name, p.EsimTranNo, err)
		} else if s != "" {
			status = s
		}

		return c.JSON(http.StatusOK, map[string]any{
			"ok":           true,
			"action":       name,
			"esim_tran_no": p.EsimTranNo,
			"status":       status,
		})
	}
}

// refreshStatus reads the provider's current status for tranNo and stores
// it. An empty status means the provider did not return the profile.
func refreshStatus(ctx context.Context, profiles repository.ProfilesRepository, q Querier, tranNo string) (string, error) {
	res, err := q.QueryProfiles(ctx, esimaccess.QueryParams{
		EsimTranNo: tranNo,
		Pager:      esimaccess.Pager{PageNum: 1, PageSize: 1},
	})
	if err != nil {
		return "", err
	}
	for _, prof := range res.EsimList {
		if prof.EsimTranNo == tranNo && prof.EsimStatus != "" {
			return prof.EsimStatus, profiles.UpdateStatus(ctx, tranNo, prof.EsimStatus)
		}
	}
	return "", nil
}

type esimTopupReq struct {
	PackageCode string `json:"package_code"`
}

func esimTopupHandler(profiles repository.ProfilesRepository, svc Orders) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req esimTopupReq
		if err := c.Bind(&req); err != nil || strings.TrimSpace(req.PackageCode) == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		p, err := ownedProfile(c, profiles)
		if p == nil {
			return err
		}

		res, err := svc.Topup(c.Request().Context(), p.CustomerID, p.EsimTranNo, strings.TrimSpace(req.PackageCode))
		if err != nil {
			return orderFailure(c, p.CustomerID, err)
		}
		return c.JSON(http.StatusOK, res)
	}
}
