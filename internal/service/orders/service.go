package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/metrics"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/catalog"
	"github.com/jmehdipour/esim-gateway/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	OrdersKafkaTopic = "esim.orders"
	MaxCount         = 50
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownPackage    = errors.New("unknown package")
	ErrInvalidCount      = errors.New("invalid count")
	ErrNotFound          = errors.New("order not found")
	// ErrUpstream wraps failures of provider calls made on the request path.
	ErrUpstream = errors.New("upstream call failed")
)

// Pricer resolves a package's current price. *catalog.Service satisfies it.
type Pricer interface {
	Package(ctx context.Context, code string) (*esimaccess.Package, error)
}

// Topupper is satisfied by *esimaccess.TopupService.
type Topupper interface {
	TopupProfile(ctx context.Context, req esimaccess.TopupRequest) (*esimaccess.TopupResult, error)
}

type OrderInput struct {
	PackageCode string
	Count       int
}

// Service atomically persists orders, wallet reserve, ledger events, and
// outbox events. Upstream ordering happens later in the provisioner.
type Service struct {
	db     *sqlx.DB
	orders repository.OrdersRepository
	outbox repository.OutboxRepository
	wallet repository.WalletRepository
	ledger repository.LedgerRepository
	pricer Pricer
	topup  Topupper
	log    *zap.Logger
}

func New(
	db *sqlx.DB,
	ordersRepo repository.OrdersRepository,
	outboxRepo repository.OutboxRepository,
	walletRepo repository.WalletRepository,
	ledgerRepo repository.LedgerRepository,
	pricer Pricer,
	topup Topupper,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:     db,
		orders: ordersRepo,
		outbox: outboxRepo,
		wallet: walletRepo,
		ledger: ledgerRepo,
		pricer: pricer,
		topup:  topup,
		log:    log,
	}
}

// price looks up the unit price of code. Catalog misses map to ErrUnknownPackage.
func (s *Service) price(ctx context.Context, code string) (*esimaccess.Package, error) {
	pkg, err := s.pricer.Package(ctx, code)
	if errors.Is(err, catalog.ErrPackageNotFound) {
		return nil, ErrUnknownPackage
	}
	if err != nil {
		return nil, fmt.Errorf("%w: price lookup: %w", ErrUpstream, err)
	}
	if pkg.Price <= 0 {
		return nil, ErrUnknownPackage
	}
	return pkg, nil
}

// Enqueue prices the order, reserves wallet funds, and writes
// `wallet_ledger(reserve)`, `orders` and `outbox` within a single transaction.
func (s *Service) Enqueue(ctx context.Context, customerID int64, in OrderInput) (model.Order, error) {
	if in.Count <= 0 || in.Count > MaxCount {
		return model.Order{}, ErrInvalidCount
	}

	pkg, err := s.price(ctx, in.PackageCode)
	if err != nil {
		return model.Order{}, err
	}

	order := model.Order{
		ID:          util.NewID(),
		CustomerID:  customerID,
		PackageCode: pkg.PackageCode,
		Count:       in.Count,
		UnitPrice:   pkg.Price,
		Amount:      pkg.Price * int64(in.Count),
		Status:      model.OrderQueued,
	}

	payload, err := json.Marshal(model.Envelope{
		OrderID:     order.ID,
		CustomerID:  customerID,
		PackageCode: order.PackageCode,
		Count:       order.Count,
		UnitPrice:   order.UnitPrice,
		Amount:      order.Amount,
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("marshal envelope: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.reserve(ctx, tx, customerID, order.Amount, order.ID); err != nil {
		return model.Order{}, err
	}

	if err := s.orders.InsertQueued(ctx, tx, order); err != nil {
		return model.Order{}, fmt.Errorf("insert order queued: %w", err)
	}

	if err := s.outbox.Insert(ctx, tx, model.OutboxEvent{
		Aggregate:   model.AggregateOrder,
		AggregateID: order.ID,
		Topic:       OrdersKafkaTopic,
		Payload:     payload,
	}); err != nil {
		return model.Order{}, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}

	metrics.OrdersTotal.WithLabelValues(model.OrderQueued.String()).Inc()
	return order, nil
}

func (s *Service) reserve(ctx context.Context, tx *sqlx.Tx, customerID, amount int64, ref string) error {
	if err := s.wallet.UpsertAccount(ctx, tx, customerID); err != nil {
		return fmt.Errorf("wallet upsert: %w", err)
	}

	bal, _, err := s.wallet.GetForUpdate(ctx, tx, customerID)
	if err != nil {
		return fmt.Errorf("wallet get for update: %w", err)
	}
	if bal < amount {
		return ErrInsufficientFunds
	}

	if err := s.wallet.Adjust(ctx, tx, customerID, -amount, +amount); err != nil {
		return fmt.Errorf("wallet reserve adjust: %w", err)
	}
	if err := s.ledger.InsertReserve(ctx, tx, customerID, amount, ref, "reserve-"+ref); err != nil {
		return fmt.Errorf("ledger reserve: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, customerID int64, id string) (*model.Order, error) {
	if !util.ValidID(id) {
		return nil, ErrNotFound
	}
	o, err := s.orders.GetForCustomer(ctx, customerID, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, customerID int64, limit, offset int) ([]model.Order, error) {
	return s.orders.ListByCustomer(ctx, customerID, limit, offset)
}

// Topup charges the wallet for a top-up plan and applies it to an existing
// eSIM synchronously. The reserve is captured on success and refunded when
// the provider rejects the request.
func (s *Service) Topup(ctx context.Context, customerID int64, esimTranNo, packageCode string) (*esimaccess.TopupResult, error) {
	pkg, err := s.price(ctx, packageCode)
	if err != nil {
		return nil, err
	}

	ref := util.NewID()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.reserve(ctx, tx, customerID, pkg.Price, ref); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	res, terr := s.topup.TopupProfile(ctx, esimaccess.TopupRequest{
		EsimTranNo:    esimTranNo,
		PackageCode:   pkg.PackageCode,
		TransactionID: ref,
		Amount:        pkg.Price,
	})

	row := repository.LedgerRow{CustomerID: customerID, Amount: pkg.Price, OrderID: ref}
	switch {
	case terr == nil:
		err = s.settle(ctx, []repository.LedgerRow{row}, nil)
	case Definitive(terr):
		err = s.settle(ctx, nil, []repository.LedgerRow{row})
	default:
		// Outcome unknown; the reserve stays until reconciled by hand.
		s.log.Error("topup outcome unknown, reserve kept",
			zap.String("ref", ref), zap.Int64("customer_id", customerID), zap.Error(terr))
	}
	if err != nil {
		s.log.Error("topup settle failed", zap.String("ref", ref), zap.Error(err))
	}
	if terr != nil {
		return nil, fmt.Errorf("%w: topup %s: %w", ErrUpstream, esimTranNo, terr)
	}
	return res, nil
}

func (s *Service) settle(ctx context.Context, captured, refunded []repository.LedgerRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ledger.InsertCaptureBatch(ctx, tx, captured); err != nil {
		return fmt.Errorf("ledger capture: %w", err)
	}
	if err := s.ledger.InsertRefundBatch(ctx, tx, refunded); err != nil {
		return fmt.Errorf("ledger refund: %w", err)
	}
	if err := s.wallet.BatchApplySums(ctx, tx, Deltas(captured, refunded)); err != nil {
		return fmt.Errorf("wallet apply: %w", err)
	}
	return tx.Commit()
}

// Deltas turns captured and refunded ledger rows into wallet movements:
// both release the reserve, refunds also return the amount to balance.
func Deltas(captured, refunded []repository.LedgerRow) []repository.WalletDelta {
	out := make([]repository.WalletDelta, 0, len(captured)+len(refunded))
	for _, r := range captured {
		out = append(out, repository.WalletDelta{CustomerID: r.CustomerID, DecReserved: r.Amount})
	}
	for _, r := range refunded {
		out = append(out, repository.WalletDelta{CustomerID: r.CustomerID, DecReserved: r.Amount, IncBalance: r.Amount})
	}
	return repository.SumDeltas(out)
}

// Definitive reports whether err proves the provider did not act on the
// request, so the reserved amount can be refunded. Transport errors and
// 5xx responses are ambiguous.
func Definitive(err error) bool {
	if errors.Is(err, esimaccess.ErrCircuitOpen) {
		return true
	}
	var apiErr *esimaccess.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	var httpErr *esimaccess.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}
	return false
}
