package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// Provider statuses after which an eSIM never consumes data again.
var terminalStatuses = []string{"CANCEL", "REVOKED", "USED_EXPIRED", "UNUSED_EXPIRED"}

type ProfilesRepository interface {
	Upsert(ctx context.Context, p model.ESIMProfile) error
	GetForCustomer(ctx context.Context, customerID int64, esimTranNo string) (*model.ESIMProfile, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.ESIMProfile, error)
	ListActive(ctx context.Context, afterTranNo string, limit int) ([]model.ESIMProfile, error)
	UpdateUsage(ctx context.Context, esimTranNo string, dataUsage, totalVolume int64) error
	UpdateStatus(ctx context.Context, esimTranNo, status string) error
}

type ProfilesRepositoryImpl struct {
	db *sqlx.DB
}

func NewProfilesRepository(db *sqlx.DB) *ProfilesRepositoryImpl {
	return &ProfilesRepositoryImpl{db: db}
}

var _ ProfilesRepository = (*ProfilesRepositoryImpl)(nil)

const profileColumns = `esim_tran_no, order_id, customer_id, iccid, status, total_volume, data_usage, expired_time, created_at, updated_at`

func (r *ProfilesRepositoryImpl) Upsert(ctx context.Context, p model.ESIMProfile) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO esim_profiles
		    (esim_tran_no, order_id, customer_id, iccid, status, total_volume, data_usage, expired_time, created_at, updated_at)
		VALUES
		    (:esim_tran_no, :order_id, :customer_id, :iccid, :status, :total_volume, :data_usage, :expired_time, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    iccid        = VALUES(iccid),
		    status       = VALUES(status),
		    total_volume = VALUES(total_volume),
		    data_usage   = VALUES(data_usage),
		    expired_time = VALUES(expired_time),
		    updated_at   = VALUES(updated_at)
	`, p)
	return err
}

// GetForCustomer returns (nil, nil) when the profile is unknown or owned by
// another customer.
func (r *ProfilesRepositoryImpl) GetForCustomer(ctx context.Context, customerID int64, esimTranNo string) (*model.ESIMProfile, error) {
	var p model.ESIMProfile
	err := r.db.GetContext(ctx, &p,
		`SELECT `+profileColumns+` FROM esim_profiles WHERE esim_tran_no = ? AND customer_id = ? LIMIT 1`,
		esimTranNo, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfilesRepositoryImpl) ListByOrder(ctx context.Context, orderID string) ([]model.ESIMProfile, error) {
	var rows []model.ESIMProfile
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+profileColumns+` FROM esim_profiles WHERE order_id = ? ORDER BY esim_tran_no`, orderID)
	return rows, err
}

// ListActive pages through non-terminal profiles by esim_tran_no (keyset).
func (r *ProfilesRepositoryImpl) ListActive(ctx context.Context, afterTranNo string, limit int) ([]model.ESIMProfile, error) {
	if limit <= 0 {
		limit = 100
	}
	q, args, err := sqlx.In(
		`SELECT `+profileColumns+` FROM esim_profiles
		 WHERE esim_tran_no > ? AND status NOT IN (?)
		 ORDER BY esim_tran_no
		 LIMIT ?`,
		afterTranNo, terminalStatuses, limit)
	if err != nil {
		return nil, err
	}

	var rows []model.ESIMProfile
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...)
	return rows, err
}

func (r *ProfilesRepositoryImpl) UpdateUsage(ctx context.Context, esimTranNo string, dataUsage, totalVolume int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE esim_profiles SET data_usage = ?, total_volume = ?, updated_at = NOW()
		WHERE esim_tran_no = ?
	`, dataUsage, totalVolume, esimTranNo)
	return err
}

func (r *ProfilesRepositoryImpl) UpdateStatus(ctx context.Context, esimTranNo, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE esim_profiles SET status = ?, updated_at = NOW()
		WHERE esim_tran_no = ?
	`, status, esimTranNo)
	return err
}
