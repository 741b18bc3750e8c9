package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/catalog"
	"github.com/jmehdipour/esim-gateway/internal/util"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePricer struct {
	pkgs map[string]esimaccess.Package
	err  error
}

func (f fakePricer) Package(_ context.Context, code string) (*esimaccess.Package, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pkgs[code]
	if !ok {
		return nil, catalog.ErrPackageNotFound
	}
	return &p, nil
}

type fakeOrders struct {
	repository.OrdersRepository
	byID map[string]model.Order
}

func (f fakeOrders) GetForCustomer(_ context.Context, customerID int64, id string) (*model.Order, error) {
	o, ok := f.byID[id]
	if !ok || o.CustomerID != customerID {
		return nil, nil
	}
	return &o, nil
}

func newTestService(t *testing.T, pricer Pricer, orders repository.OrdersRepository) *Service {
	return New(nil, orders, nil, nil, nil, pricer, nil, zaptest.NewLogger(t))
}

func TestEnqueue_RejectsBeforeTouchingStorage(t *testing.T) {
	pricer := fakePricer{pkgs: map[string]esimaccess.Package{
		"FREE": {PackageCode: "FREE", Price: 0},
	}}
	s := newTestService(t, pricer, nil)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, 1, OrderInput{PackageCode: "CKH491", Count: 0})
	assert.ErrorIs(t, err, ErrInvalidCount)

	_, err = s.Enqueue(ctx, 1, OrderInput{PackageCode: "CKH491", Count: MaxCount + 1})
	assert.ErrorIs(t, err, ErrInvalidCount)

	_, err = s.Enqueue(ctx, 1, OrderInput{PackageCode: "NOPE", Count: 1})
	assert.ErrorIs(t, err, ErrUnknownPackage)

	_, err = s.Enqueue(ctx, 1, OrderInput{PackageCode: "FREE", Count: 1})
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestEnqueue_PricingFailureIsWrapped(t *testing.T) {
	upstream := &esimaccess.HTTPError{Path: esimaccess.PathPackageList, StatusCode: 502}
	s := newTestService(t, fakePricer{err: upstream}, nil)

	_, err := s.Enqueue(context.Background(), 1, OrderInput{PackageCode: "CKH491", Count: 1})
	var httpErr *esimaccess.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.NotErrorIs(t, err, ErrUnknownPackage)
}

func TestGet_ScopedToCustomer(t *testing.T) {
	id := util.NewID()
	orders := fakeOrders{byID: map[string]model.Order{
		id: {ID: id, CustomerID: 7, Status: model.OrderPlaced},
	}}
	s := newTestService(t, nil, orders)
	ctx := context.Background()

	o, err := s.Get(ctx, 7, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPlaced, o.Status)

	_, err = s.Get(ctx, 8, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, 7, "not-a-ulid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeltas(t *testing.T) {
	got := Deltas(
		[]repository.LedgerRow{{CustomerID: 1, Amount: 100}, {CustomerID: 2, Amount: 40}},
		[]repository.LedgerRow{{CustomerID: 1, Amount: 25}},
	)
	assert.Equal(t, []repository.WalletDelta{
		{CustomerID: 1, DecReserved: 125, IncBalance: 25},
		{CustomerID: 2, DecReserved: 40},
	}, got)
}

func TestDefinitive(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{esimaccess.ErrCircuitOpen, true},
		{fmt.Errorf("wrap: %w", &esimaccess.APIError{Code: "310241"}), true},
		{&esimaccess.HTTPError{StatusCode: 400}, true},
		{&esimaccess.HTTPError{StatusCode: 503}, false},
		{context.DeadlineExceeded, false},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Definitive(tc.err), "%v", tc.err)
	}
}

type fakeWallet struct {
	repository.WalletRepository
	balance  int64
	adjusted []int64 // balance deltas
	deltas   []repository.WalletDelta
}

func (f *fakeWallet) UpsertAccount(context.Context, *sqlx.Tx, int64) error { return nil }

func (f *fakeWallet) GetForUpdate(context.Context, *sqlx.Tx, int64) (int64, int64, error) {
	return f.balance, 0, nil
}

func (f *fakeWallet) Adjust(_ context.Context, _ *sqlx.Tx, _ int64, dBal, _ int64) error {
	f.adjusted = append(f.adjusted, dBal)
	return nil
}

func (f *fakeWallet) BatchApplySums(_ context.Context, _ *sqlx.Tx, deltas []repository.WalletDelta) error {
	f.deltas = append(f.deltas, deltas...)
	return nil
}

type fakeLedger struct {
	repository.LedgerRepository
	reserved []string
	captured []repository.LedgerRow
	refunded []repository.LedgerRow
}

func (f *fakeLedger) InsertReserve(_ context.Context, _ *sqlx.Tx, _ int64, _ int64, ref, _ string) error {
	f.reserved = append(f.reserved, ref)
	return nil
}

func (f *fakeLedger) InsertCaptureBatch(_ context.Context, _ *sqlx.Tx, rows []repository.LedgerRow) error {
	f.captured = append(f.captured, rows...)
	return nil
}

func (f *fakeLedger) InsertRefundBatch(_ context.Context, _ *sqlx.Tx, rows []repository.LedgerRow) error {
	f.refunded = append(f.refunded, rows...)
	return nil
}

type fakeTopup struct {
	req esimaccess.TopupRequest
	err error
}

func (f *fakeTopup) TopupProfile(_ context.Context, req esimaccess.TopupRequest) (*esimaccess.TopupResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &esimaccess.TopupResult{TransactionID: req.TransactionID, TotalVolume: 1 << 30}, nil
}

type topupEnv struct {
	svc    *Service
	mock   sqlmock.Sqlmock
	wallet *fakeWallet
	ledger *fakeLedger
	up     *fakeTopup
}

func newTopupEnv(t *testing.T, balance int64, upErr error) *topupEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &topupEnv{
		mock:   mock,
		wallet: &fakeWallet{balance: balance},
		ledger: &fakeLedger{},
		up:     &fakeTopup{err: upErr},
	}
	pricer := fakePricer{pkgs: map[string]esimaccess.Package{
		"TOPUP_CKH491": {PackageCode: "TOPUP_CKH491", Price: 1500},
	}}
	env.svc = New(sqlx.NewDb(db, "mysql"), nil, nil, env.wallet, env.ledger, pricer, env.up, zaptest.NewLogger(t))
	return env
}

func TestTopup_CapturesOnSuccess(t *testing.T) {
	env := newTopupEnv(t, 5000, nil)
	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	res, err := env.svc.Topup(context.Background(), 7, "T1", "TOPUP_CKH491")
	require.NoError(t, err)
	require.NoError(t, env.mock.ExpectationsWereMet())

	require.Len(t, env.ledger.reserved, 1)
	ref := env.ledger.reserved[0]
	assert.Equal(t, ref, res.TransactionID)
	assert.Equal(t, esimaccess.TopupRequest{EsimTranNo: "T1", PackageCode: "TOPUP_CKH491", TransactionID: ref, Amount: 1500}, env.up.req)

	assert.Equal(t, []int64{-1500}, env.wallet.adjusted)
	assert.Equal(t, []repository.LedgerRow{{CustomerID: 7, Amount: 1500, OrderID: ref}}, env.ledger.captured)
	assert.Empty(t, env.ledger.refunded)
	assert.Equal(t, []repository.WalletDelta{{CustomerID: 7, DecReserved: 1500}}, env.wallet.deltas)
}

func TestTopup_RefundsOnProviderRejection(t *testing.T) {
	env := newTopupEnv(t, 5000, &esimaccess.APIError{Code: "310241", Message: "esim not active"})
	env.mock.ExpectBegin()
	env.mock.ExpectCommit()
	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	_, err := env.svc.Topup(context.Background(), 7, "T1", "TOPUP_CKH491")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.True(t, esimaccess.IsAPIError(err, "310241"))
	require.NoError(t, env.mock.ExpectationsWereMet())

	ref := env.ledger.reserved[0]
	assert.Empty(t, env.ledger.captured)
	assert.Equal(t, []repository.LedgerRow{{CustomerID: 7, Amount: 1500, OrderID: ref}}, env.ledger.refunded)
	assert.Equal(t, []repository.WalletDelta{{CustomerID: 7, DecReserved: 1500, IncBalance: 1500}}, env.wallet.deltas)
}

func TestTopup_KeepsReserveWhenOutcomeUnknown(t *testing.T) {
	env := newTopupEnv(t, 5000, fmt.Errorf("esimaccess: post /esim/topup: %w", context.DeadlineExceeded))
	env.mock.ExpectBegin()
	env.mock.ExpectCommit()

	_, err := env.svc.Topup(context.Background(), 7, "T1", "TOPUP_CKH491")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, env.mock.ExpectationsWereMet())

	assert.Len(t, env.ledger.reserved, 1)
	assert.Empty(t, env.ledger.captured)
	assert.Empty(t, env.ledger.refunded)
	assert.Empty(t, env.wallet.deltas)
}

func TestTopup_InsufficientFundsNeverCallsProvider(t *testing.T) {
	env := newTopupEnv(t, 1000, nil)
	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	_, err := env.svc.Topup(context.Background(), 7, "T1", "TOPUP_CKH491")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, env.mock.ExpectationsWereMet())
	assert.Empty(t, env.up.req.TransactionID)
	assert.Empty(t, env.ledger.reserved)
}
