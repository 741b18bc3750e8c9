package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/kafka"
	"github.com/jmehdipour/esim-gateway/internal/metrics"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/service/orders"
	"github.com/jmehdipour/esim-gateway/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Consumer is the subset of *kafka.Consumer the provisioner needs.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Orderer places orders upstream. *esimaccess.OrdersService satisfies it.
type Orderer interface {
	OrderProfiles(ctx context.Context, req esimaccess.OrderRequest) (*esimaccess.OrderResult, error)
}

// ProfileFinder looks up issued eSIMs. *esimaccess.UsageService satisfies it.
type ProfileFinder interface {
	QueryProfiles(ctx context.Context, p esimaccess.QueryParams) (*esimaccess.ProfileList, error)
}

const (
	lookupPageSize = 50
	lookupMaxPages = 20
)

var errLookupTruncated = errors.New("provisioner: order lookup window exceeds page limit")

// Provisioner:
// - fetches order envelopes from Kafka,
// - places them with the eSIM provider (transactionId = order id),
// - batches order/wallet/ledger updates atomically.
type Provisioner struct {
	// Dependencies
	DB       *sqlx.DB
	Consumer Consumer
	Orders   repository.OrdersRepository
	Wallet   repository.WalletRepository
	Ledger   repository.LedgerRepository
	Upstream Orderer
	Finder   ProfileFinder
	Log      *zap.Logger
	Now      func() time.Time

	// Behavior
	Workers      int           // number of goroutines placing orders
	BatchSize    int           // max buffered updates per flush
	BatchWait    time.Duration // max time to wait before flush
	Attempts     int           // tries while the breaker is open
	RetryBackoff time.Duration
}

func NewProvisioner(
	db *sqlx.DB,
	consumer Consumer,
	ordersRepo repository.OrdersRepository,
	walletRepo repository.WalletRepository,
	ledgerRepo repository.LedgerRepository,
	upstream Orderer,
	finder ProfileFinder,
	log *zap.Logger,
) *Provisioner {
	return &Provisioner{
		DB:           db,
		Consumer:     consumer,
		Orders:       ordersRepo,
		Wallet:       walletRepo,
		Ledger:       ledgerRepo,
		Upstream:     upstream,
		Finder:       finder,
		Log:          log,
		Now:          time.Now,
		Workers:      8,
		BatchSize:    100,
		BatchWait:    300 * time.Millisecond,
		Attempts:     3,
		RetryBackoff: 2 * time.Second,
	}
}

func (w *Provisioner) defaults() {
	if w.Workers <= 0 {
		w.Workers = 8
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 100
	}
	if w.BatchWait <= 0 {
		w.BatchWait = 300 * time.Millisecond
	}
	if w.Attempts <= 0 {
		w.Attempts = 1
	}
	if w.Log == nil {
		w.Log = zap.NewNop()
	}
	if w.Now == nil {
		w.Now = time.Now
	}
}

// Run starts the worker and blocks until ctx is cancelled. Pending updates
// are flushed before it returns.
func (w *Provisioner) Run(ctx context.Context) error {
	w.defaults()
	if w.Upstream == nil || w.Finder == nil || w.Consumer == nil {
		return errors.New("provisioner: missing upstream, finder or consumer")
	}

	updates := make(chan updateItem, w.BatchSize*2)
	msgCh := make(chan kafka.Message, w.Workers*2)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w.runBatchWriter(ctx, updates)
	}()

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Log.Warn("kafka fetch failed", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgCh {
				w.processOne(ctx, m, updates)
			}
		}()
	}

	wg.Wait()
	close(updates)
	<-writerDone
	return nil
}

type updateItem struct {
	orderID    string
	customerID int64
	amount     int64
	status     model.OrderStatus // placed | failed
	providerNo string
	reason     string
}

func (w *Provisioner) processOne(ctx context.Context, m kafka.Message, out chan<- updateItem) {
	it, ok := w.handle(ctx, m)
	if ok {
		out <- it
	}
	if ctx.Err() != nil && !ok {
		// shutting down mid-order: leave the offset for redelivery
		return
	}
	// at-least-once; MarkPlaced/MarkFailed only act on queued orders
	if err := w.Consumer.Commit(ctx, m); err != nil {
		w.Log.Warn("kafka commit failed", zap.Error(err))
	}
}

// handle places one order. It returns false when there is nothing to
// persist: a poison message, or an upstream outcome that cannot be known.
func (w *Provisioner) handle(ctx context.Context, m kafka.Message) (updateItem, bool) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.OrderID == "" {
		w.Log.Error("bad order envelope", zap.Error(err), zap.ByteString("key", m.Key))
		return updateItem{}, false
	}

	it := updateItem{orderID: env.OrderID, customerID: env.CustomerID, amount: env.Amount}
	if env.Count <= 0 || env.PackageCode == "" {
		it.status = model.OrderFailed
		it.reason = "invalid order envelope"
		return it, true
	}

	req := esimaccess.OrderRequest{
		TransactionID: env.OrderID,
		Amount:        env.Amount,
		PackageInfoList: []esimaccess.PackageInfo{{
			PackageCode: env.PackageCode,
			Count:       env.Count,
			Price:       env.UnitPrice,
		}},
	}

	var (
		res *esimaccess.OrderResult
		err error
	)
	for attempt := 1; attempt <= w.Attempts; attempt++ {
		res, err = w.Upstream.OrderProfiles(ctx, req)
		if !errors.Is(err, esimaccess.ErrCircuitOpen) || attempt == w.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return updateItem{}, false
		case <-time.After(w.RetryBackoff):
		}
	}

	// A rejection may follow an earlier delivery that placed this order but
	// never stored the result. Nothing is refunded unless a lookup by
	// transactionId comes back empty.
	if err != nil && orders.Definitive(err) {
		orderNo, lerr := w.findPlaced(ctx, env.OrderID)
		switch {
		case lerr != nil:
			return w.unknown(env, fmt.Errorf("%w (lookup: %v)", err, lerr))
		case orderNo != "":
			w.Log.Warn("order already placed upstream",
				zap.String("order_id", env.OrderID), zap.String("provider_order_no", orderNo), zap.Error(err))
			res, err = &esimaccess.OrderResult{OrderNo: orderNo, TransactionID: env.OrderID}, nil
		case esimaccess.IsAPIError(err, esimaccess.CodeDuplicateTransaction):
			// placed before, but its eSIMs are not visible yet
			return w.unknown(env, err)
		}
	}

	switch {
	case err == nil:
		metrics.OrdersTotal.WithLabelValues(model.OrderPlaced.String()).Inc()
		it.status = model.OrderPlaced
		it.providerNo = res.OrderNo
		return it, true
	case orders.Definitive(err):
		metrics.OrdersTotal.WithLabelValues(model.OrderFailed.String()).Inc()
		w.Log.Warn("order rejected", zap.String("order_id", env.OrderID), zap.Error(err))
		it.status = model.OrderFailed
		it.reason = err.Error()
		return it, true
	default:
		return w.unknown(env, err)
	}
}

func (w *Provisioner) unknown(env model.Envelope, err error) (updateItem, bool) {
	metrics.OrdersTotal.WithLabelValues("unknown").Inc()
	w.Log.Error("order outcome unknown, left queued",
		zap.String("order_id", env.OrderID), zap.Int64("customer_id", env.CustomerID), zap.Error(err))
	return updateItem{}, false
}

// findPlaced searches eSIMs issued since the order was created for one
// carrying transactionID and returns its provider order number, or "" when
// there is none.
func (w *Provisioner) findPlaced(ctx context.Context, transactionID string) (string, error) {
	created, ok := util.IDTime(transactionID)
	if !ok {
		return "", fmt.Errorf("provisioner: order id %q is not a ULID", transactionID)
	}

	params := esimaccess.QueryParams{
		StartTime: created.Add(-time.Minute).UTC().Format(esimaccess.QueryTimeLayout),
		EndTime:   w.Now().Add(time.Minute).UTC().Format(esimaccess.QueryTimeLayout),
	}
	for page := 1; page <= lookupMaxPages; page++ {
		params.Pager = esimaccess.Pager{PageNum: page, PageSize: lookupPageSize}
		res, err := w.Finder.QueryProfiles(ctx, params)
		if err != nil {
			return "", err
		}
		for _, p := range res.EsimList {
			if p.TransactionID == transactionID && p.OrderNo != "" {
				return p.OrderNo, nil
			}
		}
		if len(res.EsimList) < lookupPageSize {
			return "", nil
		}
		if res.Pager.Total > 0 && page*lookupPageSize >= res.Pager.Total {
			return "", nil
		}
	}
	return "", errLookupTruncated
}

// runBatchWriter does size/time-based flush of DB updates atomically.
func (w *Provisioner) runBatchWriter(ctx context.Context, in <-chan updateItem) {
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	// the final flush must outlive the run context
	flushCtx := context.WithoutCancel(ctx)
	var pending []updateItem

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := w.flush(flushCtx, pending); err != nil {
			w.Log.Error("batch flush failed, will retry", zap.Int("items", len(pending)), zap.Error(err))
			return
		}
		pending = pending[:0]
	}

	for {
		select {
		case u, ok := <-in:
			if !ok {
				flush()
				return
			}
			pending = append(pending, u)
			if len(pending) >= w.BatchSize {
				flush()
			}
		case <-tick.C:
			flush()
		}
	}
}

// flush writes order transitions, then ledger rows and wallet deltas for the
// orders this batch actually moved out of queued, in a single tx.
func (w *Provisioner) flush(ctx context.Context, items []updateItem) error {
	tx, err := w.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var captured, refunded []repository.LedgerRow
	for _, it := range items {
		var changed bool
		switch it.status {
		case model.OrderPlaced:
			changed, err = w.Orders.MarkPlaced(ctx, tx, it.orderID, it.providerNo)
		case model.OrderFailed:
			changed, err = w.Orders.MarkFailed(ctx, tx, it.orderID, it.reason)
		}
		if err != nil {
			return fmt.Errorf("order %s status: %w", it.orderID, err)
		}
		if !changed {
			continue
		}
		row := repository.LedgerRow{CustomerID: it.customerID, Amount: it.amount, OrderID: it.orderID}
		if it.status == model.OrderPlaced {
			captured = append(captured, row)
		} else {
			refunded = append(refunded, row)
		}
	}

	if err := w.Ledger.InsertCaptureBatch(ctx, tx, captured); err != nil {
		return fmt.Errorf("ledger capture batch: %w", err)
	}
	if err := w.Ledger.InsertRefundBatch(ctx, tx, refunded); err != nil {
		return fmt.Errorf("ledger refund batch: %w", err)
	}
	deltas := orders.Deltas(captured, refunded)
	if err := w.Wallet.BatchApplySums(ctx, tx, deltas); err != nil {
		return fmt.Errorf("wallet batch apply: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}

	w.Log.Info("provisioner flushed",
		zap.Int("placed", len(captured)),
		zap.Int("failed", len(refunded)),
		zap.Int("skipped", len(items)-len(captured)-len(refunded)),
		zap.Int("customers", len(deltas)))
	return nil
}
