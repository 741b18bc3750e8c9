package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHUsageRepository stores and lists usage snapshots in ClickHouse.
type CHUsageRepository interface {
	InsertSnapshots(ctx context.Context, rows []model.UsageSnapshot) error
	ListByCustomer(ctx context.Context, customerID int64, esimTranNo string, since time.Time, limit, offset int) ([]model.UsageSnapshot, error)
}

type chUsageRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHUsageRepository(ch *sqlx.DB) CHUsageRepository {
	return &chUsageRepository{ch: ch}
}

// InsertSnapshots sends rows as one ClickHouse block (prepared batch insert).
func (r *chUsageRepository) InsertSnapshots(ctx context.Context, rows []model.UsageSnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO esimgw.usage_snapshots
		    (esim_tran_no, customer_id, iccid, data_usage, total_data, observed_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range rows {
		if _, err := stmt.ExecContext(ctx, s.EsimTranNo, s.CustomerID, s.ICCID, s.DataUsage, s.TotalData, s.ObservedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *chUsageRepository) ListByCustomer(ctx context.Context, customerID int64, esimTranNo string, since time.Time, limit, offset int) ([]model.UsageSnapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT esim_tran_no, customer_id, iccid, data_usage, total_data, observed_at
		FROM esimgw.usage_snapshots
		WHERE customer_id = ?
	`
	args := []any{customerID}

	if esimTranNo != "" {
		q += " AND esim_tran_no = ?"
		args = append(args, esimTranNo)
	}
	if !since.IsZero() {
		q += " AND observed_at >= ?"
		args = append(args, since)
	}

	q += " ORDER BY observed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.UsageSnapshot
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
