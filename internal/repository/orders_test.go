package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func TestListPlacedMissingProfiles_KeepsPartiallySyncedOrders(t *testing.T) {
	dbx, mock := newMockDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cols := []string{"id", "customer_id", "package_code", "count", "unit_price", "amount",
		"status", "provider_order_no", "error", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("HAVING COUNT(p.esim_tran_no) < o.count")).
		WithArgs("O0", 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("O1", 9, "CKH491", 3, 500, 1500, "placed", "B1", nil, now, now))

	rows, err := NewOrdersRepository(dbx).ListPlacedMissingProfiles(context.Background(), "O0", 50)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Count)
	require.NotNil(t, rows[0].ProviderNo)
	assert.Equal(t, "B1", *rows[0].ProviderNo)
}

func TestMarkPlaced_OnlyFromQueued(t *testing.T) {
	dbx, mock := newMockDB(t)
	q := regexp.QuoteMeta("WHERE id = ? AND status = 'queued'")

	mock.ExpectBegin()
	mock.ExpectExec(q).WithArgs("B1", "O1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(q).WithArgs("B1", "O1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewOrdersRepository(dbx)
	changed, err := repo.MarkPlaced(context.Background(), nil, "O1", "B1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkPlaced(context.Background(), nil, "O1", "B1")
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}
