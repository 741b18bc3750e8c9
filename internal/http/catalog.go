package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/service/catalog"
	echo "github.com/labstack/echo/v4"
)

func listPackagesHandler(cat Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		typ := strings.ToUpper(strings.TrimSpace(c.QueryParam("type")))
		if typ != "" && typ != esimaccess.PackageTypeBase && typ != esimaccess.PackageTypeTopup {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid type"})
		}

		pkgs, err := cat.Packages(c.Request().Context(), c.QueryParam("location"), typ)
		if err != nil {
			return upstreamFailure(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(pkgs),
			"results": pkgs,
		})
	}
}

func getPackageHandler(cat Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		pkg, err := cat.Package(c.Request().Context(), c.Param("code"))
		if errors.Is(err, catalog.ErrPackageNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "package not found"})
		}
		if err != nil {
			return upstreamFailure(c, err)
		}
		return c.JSON(http.StatusOK, pkg)
	}
}

func listRegionsHandler(cat Catalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		locs, err := cat.Regions(c.Request().Context())
		if err != nil {
			return upstreamFailure(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(locs),
			"results": locs,
		})
	}
}
