package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/esim-gateway/internal/http/middleware"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
)

type topupReq struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"`
}

// TopupHandler credits the caller's wallet. Replays of request_id are
// acknowledged without crediting twice.
func TopupHandler(db *sqlx.DB, wallet repository.WalletRepository, ledger repository.LedgerRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || customerID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req topupReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.RequestID = strings.TrimSpace(req.RequestID)
		if req.Amount <= 0 || req.RequestID == "" || len(req.RequestID) > 128 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}

		ctx := c.Request().Context()
		idem := "topup-" + req.RequestID
		dbError := func(err error) error {
			c.Logger().Errorf("wallet topup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return dbError(err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := wallet.UpsertAccount(ctx, tx, customerID); err != nil {
			return dbError(err)
		}

		exists, err := ledger.ExistsByIdem(ctx, tx, idem)
		if err != nil {
			return dbError(err)
		}

		if !exists {
			if err := ledger.InsertTopup(ctx, tx, customerID, req.Amount, idem); err != nil {
				return dbError(err)
			}
			if err := wallet.Topup(ctx, tx, customerID, req.Amount); err != nil {
				return dbError(err)
			}
		}

		if err := tx.Commit(); err != nil {
			return dbError(err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"topup":       true,
			"idempotent":  exists,
			"amount":      req.Amount,
			"customer_id": customerID,
			"request_id":  req.RequestID,
		})
	}
}

// walletHandler returns balance and reserved credit, zero for new customers.
func walletHandler(db *sqlx.DB, wallet repository.WalletRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		customerID, ok := middleware.CustomerIDFromCtx(c)
		if !ok || customerID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		w, err := wallet.Get(c.Request().Context(), db, customerID)
		if err != nil {
			c.Logger().Errorf("wallet get failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		var balance, reserved int64
		if w != nil {
			balance, reserved = w.Balance, w.Reserved
		}
		return c.JSON(http.StatusOK, map[string]any{
			"customer_id": customerID,
			"balance":     balance,
			"reserved":    reserved,
		})
	}
}
