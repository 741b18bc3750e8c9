package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// WalletRepository moves prepaid credit between balance and reserved.
// An order reserves its amount at enqueue; the provisioner later captures
// (reserved only) or refunds (reserved back to balance).
type WalletRepository interface {
	UpsertAccount(ctx context.Context, tx *sqlx.Tx, customerID int64) error
	Get(ctx context.Context, db sqlx.QueryerContext, customerID int64) (*model.WalletAccount, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, customerID int64) (balance, reserved int64, err error)
	Adjust(ctx context.Context, tx *sqlx.Tx, customerID, deltaBalance, deltaReserved int64) error
	Topup(ctx context.Context, tx *sqlx.Tx, customerID, amount int64) error

	BatchApplySums(ctx context.Context, tx *sqlx.Tx, deltas []WalletDelta) error
}

type walletRepo struct{}

func NewWalletRepository() WalletRepository { return &walletRepo{} }

func (r *walletRepo) UpsertAccount(ctx context.Context, tx *sqlx.Tx, customerID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_accounts (customer_id, balance, reserved, created_at, updated_at)
		VALUES (?, 0, 0, NOW(), NOW())
		ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)
	`, customerID)
	return err
}

// Get returns (nil, nil) when the customer has no wallet yet.
func (r *walletRepo) Get(ctx context.Context, db sqlx.QueryerContext, customerID int64) (*model.WalletAccount, error) {
	var w model.WalletAccount
	err := sqlx.GetContext(ctx, db, &w, `
		SELECT customer_id, balance, reserved, created_at, updated_at
		FROM wallet_accounts
		WHERE customer_id = ?
	`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, customerID int64) (int64, int64, error) {
	var bal, rsv int64
	err := tx.QueryRowxContext(ctx, `
		SELECT balance, reserved
		FROM wallet_accounts
		WHERE customer_id = ?
		FOR UPDATE
	`, customerID).Scan(&bal, &rsv)
	return bal, rsv, err
}

func (r *walletRepo) Adjust(ctx context.Context, tx *sqlx.Tx, customerID, dBal, dRsv int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts
		SET balance = balance + ?, reserved = reserved + ?, updated_at = NOW()
		WHERE customer_id = ?
	`, dBal, dRsv, customerID)
	return err
}

func (r *walletRepo) Topup(ctx context.Context, tx *sqlx.Tx, customerID, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts
		SET balance = balance + ?, updated_at = NOW()
		WHERE customer_id = ?
	`, amount, customerID)
	return err
}

type WalletDelta struct {
	CustomerID  int64
	DecReserved int64
	IncBalance  int64
}

// SumDeltas folds per-order deltas into one row per customer.
func SumDeltas(in []WalletDelta) []WalletDelta {
	byCustomer := make(map[int64]WalletDelta, len(in))
	order := make([]int64, 0, len(in))
	for _, d := range in {
		cur, ok := byCustomer[d.CustomerID]
		if !ok {
			order = append(order, d.CustomerID)
		}
		cur.CustomerID = d.CustomerID
		cur.DecReserved += d.DecReserved
		cur.IncBalance += d.IncBalance
		byCustomer[d.CustomerID] = cur
	}

	out := make([]WalletDelta, 0, len(order))
	for _, id := range order {
		out = append(out, byCustomer[id])
	}
	return out
}

func (r *walletRepo) BatchApplySums(ctx context.Context, tx *sqlx.Tx, deltas []WalletDelta) error {
	deltas = SumDeltas(deltas)
	if len(deltas) == 0 {
		return nil
	}

	var sbRaw strings.Builder
	args := make([]any, 0, len(deltas)*3)

	sbRaw.WriteString("SELECT ? AS customer_id, ? AS dec_reserved, ? AS inc_balance")
	args = append(args, deltas[0].CustomerID, deltas[0].DecReserved, deltas[0].IncBalance)
	for _, d := range deltas[1:] {
		sbRaw.WriteString(" UNION ALL SELECT ?, ?, ?")
		args = append(args, d.CustomerID, d.DecReserved, d.IncBalance)
	}

	query := fmt.Sprintf(`
		UPDATE wallet_accounts w
		JOIN (
			%s
		) s ON s.customer_id = w.customer_id
		SET w.reserved   = w.reserved - s.dec_reserved,
		    w.balance    = w.balance  + s.inc_balance,
		    w.updated_at = NOW()
	`, sbRaw.String())

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
