package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// OrdersRepository defines persistence for the orders table.
type OrdersRepository interface {
	InsertQueued(ctx context.Context, tx *sqlx.Tx, o model.Order) error
	GetForCustomer(ctx context.Context, customerID int64, id string) (*model.Order, error)
	ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]model.Order, error)
	// MarkPlaced and MarkFailed only move orders out of queued; they report
	// whether this call performed the transition.
	MarkPlaced(ctx context.Context, tx *sqlx.Tx, id, providerOrderNo string) (bool, error)
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id, reason string) (bool, error)
	ListPlacedMissingProfiles(ctx context.Context, afterID string, limit int) ([]model.Order, error)
}

type OrdersRepositoryImpl struct {
	db *sqlx.DB
}

func NewOrdersRepository(db *sqlx.DB) *OrdersRepositoryImpl {
	return &OrdersRepositoryImpl{db: db}
}

var _ OrdersRepository = (*OrdersRepositoryImpl)(nil)

const orderColumns = `id, customer_id, package_code, count, unit_price, amount, status, provider_order_no, error, created_at, updated_at`

// InsertQueued inserts a new order row with status=queued.
func (r *OrdersRepositoryImpl) InsertQueued(ctx context.Context, tx *sqlx.Tx, o model.Order) error {
	const q = `
		INSERT INTO orders
		    (id, customer_id, package_code, count, unit_price, amount, status, created_at, updated_at)
		VALUES
		    (?,  ?,           ?,            ?,     ?,          ?,      'queued', NOW(),  NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			o.ID, o.CustomerID, o.PackageCode, o.Count, o.UnitPrice, o.Amount,
		)
		return err
	})
}

// GetForCustomer returns (nil, nil) when the order does not exist or belongs
// to someone else.
func (r *OrdersRepositoryImpl) GetForCustomer(ctx context.Context, customerID int64, id string) (*model.Order, error) {
	var o model.Order
	err := r.db.GetContext(ctx, &o,
		`SELECT `+orderColumns+` FROM orders WHERE id = ? AND customer_id = ? LIMIT 1`, id, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrdersRepositoryImpl) ListByCustomer(ctx context.Context, customerID int64, limit, offset int) ([]model.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []model.Order
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		customerID, limit, offset)
	return rows, err
}

func (r *OrdersRepositoryImpl) MarkPlaced(ctx context.Context, tx *sqlx.Tx, id, providerOrderNo string) (bool, error) {
	return r.transition(ctx, tx, `
		UPDATE orders SET status = 'placed', provider_order_no = ?, updated_at = NOW()
		WHERE id = ? AND status = 'queued'
	`, providerOrderNo, id)
}

func (r *OrdersRepositoryImpl) MarkFailed(ctx context.Context, tx *sqlx.Tx, id, reason string) (bool, error) {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return r.transition(ctx, tx, `
		UPDATE orders SET status = 'failed', error = ?, updated_at = NOW()
		WHERE id = ? AND status = 'queued'
	`, reason, id)
}

func (r *OrdersRepositoryImpl) transition(ctx context.Context, tx *sqlx.Tx, q string, args ...any) (bool, error) {
	var changed bool
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n == 1
		return nil
	})
	return changed, err
}

// ListPlacedMissingProfiles pages (by id) through placed orders that have
// fewer synced eSIMs than they ordered. The provider allocates profiles
// asynchronously, so an order stays here until all of them are stored.
func (r *OrdersRepositoryImpl) ListPlacedMissingProfiles(ctx context.Context, afterID string, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.Order
	err := r.db.SelectContext(ctx, &rows, `
		SELECT o.id, o.customer_id, o.package_code, o.count, o.unit_price, o.amount,
		       o.status, o.provider_order_no, o.error, o.created_at, o.updated_at
		FROM orders o
		LEFT JOIN esim_profiles p ON p.order_id = o.id
		WHERE o.status = 'placed' AND o.id > ?
		GROUP BY o.id
		HAVING COUNT(p.esim_tran_no) < o.count
		ORDER BY o.id
		LIMIT ?
	`, afterID, limit)
	return rows, err
}
