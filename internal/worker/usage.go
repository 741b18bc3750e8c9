package worker

import (
	"context"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/metrics"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/jmehdipour/esim-gateway/internal/util"
	"go.uber.org/zap"
)

// Querier is satisfied by *esimaccess.UsageService.
type Querier interface {
	QueryProfiles(ctx context.Context, p esimaccess.QueryParams) (*esimaccess.ProfileList, error)
	GetUsage(ctx context.Context, esimTranNoList []string) (*esimaccess.UsageList, error)
}

// UsagePoller keeps esim_profiles in sync with the provider and records
// usage snapshots in ClickHouse.
type UsagePoller struct {
	Upstream  Querier
	Orders    repository.OrdersRepository
	Profiles  repository.ProfilesRepository
	Snapshots repository.CHUsageRepository
	Log       *zap.Logger

	Interval  time.Duration
	BatchSize int // esimTranNos per usage call
	PageSize  int // rows per profiles page
	Now       func() time.Time
}

func (p *UsagePoller) defaults() {
	if p.Interval <= 0 {
		p.Interval = 15 * time.Minute
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 10
	}
	if p.PageSize <= 0 {
		p.PageSize = 100
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
}

// Run polls once immediately, then every Interval until ctx is done.
func (p *UsagePoller) Run(ctx context.Context) error {
	p.defaults()

	tick := time.NewTicker(p.Interval)
	defer tick.Stop()

	for {
		p.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// Tick runs one sync + poll cycle. Errors are logged; the next tick retries.
func (p *UsagePoller) Tick(ctx context.Context) {
	p.defaults()
	if err := p.SyncProfiles(ctx); err != nil {
		p.Log.Error("profile sync failed", zap.Error(err))
	}
	if err := p.PollUsage(ctx); err != nil {
		p.Log.Error("usage poll failed", zap.Error(err))
	}
}

// SyncProfiles fetches issued eSIMs for placed orders that are still
// missing some locally.
func (p *UsagePoller) SyncProfiles(ctx context.Context) error {
	after := ""
	for {
		pending, err := p.Orders.ListPlacedMissingProfiles(ctx, after, p.PageSize)
		if err != nil {
			return err
		}

		for _, o := range pending {
			if o.ProviderNo == nil || *o.ProviderNo == "" {
				continue
			}
			if err := p.syncOrder(ctx, o); err != nil {
				// profiles may not be allocated yet; try again next tick
				p.Log.Warn("order profiles not synced", zap.String("order_id", o.ID), zap.Error(err))
			}
		}

		if len(pending) < p.PageSize {
			return nil
		}
		after = pending[len(pending)-1].ID
	}
}

func (p *UsagePoller) syncOrder(ctx context.Context, o model.Order) error {
	for page := 1; ; page++ {
		res, err := p.Upstream.QueryProfiles(ctx, esimaccess.QueryParams{
			OrderNo: *o.ProviderNo,
			Pager:   esimaccess.Pager{PageNum: page, PageSize: p.PageSize},
		})
		if err != nil {
			return err
		}

		for _, prof := range res.EsimList {
			if err := p.Profiles.Upsert(ctx, model.ESIMProfile{
				EsimTranNo:  prof.EsimTranNo,
				OrderID:     o.ID,
				CustomerID:  o.CustomerID,
				ICCID:       util.NormalizeICCID(prof.ICCID),
				Status:      prof.EsimStatus,
				TotalVolume: prof.TotalVolume,
				DataUsage:   prof.OrderUsage,
				ExpiredTime: prof.ExpiredTime,
			}); err != nil {
				return err
			}
		}

		if len(res.EsimList) < p.PageSize {
			return nil
		}
		if res.Pager.Total > 0 && page*p.PageSize >= res.Pager.Total {
			return nil
		}
	}
}

// PollUsage walks every active profile and records its current usage.
func (p *UsagePoller) PollUsage(ctx context.Context) error {
	after := ""
	for {
		page, err := p.Profiles.ListActive(ctx, after, p.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		for start := 0; start < len(page); start += p.BatchSize {
			end := min(start+p.BatchSize, len(page))
			if err := p.pollBatch(ctx, page[start:end]); err != nil {
				return err
			}
			p.refreshStatuses(ctx, page[start:end])
		}

		after = page[len(page)-1].EsimTranNo
		if len(page) < p.PageSize {
			return nil
		}
	}
}

func (p *UsagePoller) pollBatch(ctx context.Context, batch []model.ESIMProfile) error {
	byTranNo := make(map[string]model.ESIMProfile, len(batch))
	ids := make([]string, 0, len(batch))
	for _, prof := range batch {
		byTranNo[prof.EsimTranNo] = prof
		ids = append(ids, prof.EsimTranNo)
	}

	res, err := p.Upstream.GetUsage(ctx, ids)
	if err != nil {
		return err
	}

	now := p.Now().UTC()
	snaps := make([]model.UsageSnapshot, 0, len(res.EsimUsageList))
	for _, u := range res.EsimUsageList {
		prof, ok := byTranNo[u.EsimTranNo]
		if !ok {
			continue
		}
		snaps = append(snaps, model.UsageSnapshot{
			EsimTranNo: u.EsimTranNo,
			CustomerID: prof.CustomerID,
			ICCID:      prof.ICCID,
			DataUsage:  u.DataUsage,
			TotalData:  u.TotalData,
			ObservedAt: now,
		})
	}

	if err := p.Snapshots.InsertSnapshots(ctx, snaps); err != nil {
		return err
	}
	metrics.UsageSnapshotsTotal.Add(float64(len(snaps)))

	for _, s := range snaps {
		if err := p.Profiles.UpdateUsage(ctx, s.EsimTranNo, s.DataUsage, s.TotalData); err != nil {
			return err
		}
	}
	return nil
}

// refreshStatuses stores the provider's current status for each profile so
// cancelled, revoked and expired eSIMs drop out of ListActive. Failed
// lookups are retried on the next pass.
func (p *UsagePoller) refreshStatuses(ctx context.Context, batch []model.ESIMProfile) {
	for _, prof := range batch {
		if ctx.Err() != nil {
			return
		}
		res, err := p.Upstream.QueryProfiles(ctx, esimaccess.QueryParams{
			EsimTranNo: prof.EsimTranNo,
			Pager:      esimaccess.Pager{PageNum: 1, PageSize: 1},
		})
		if err != nil {
			p.Log.Warn("profile status lookup failed", zap.String("esim_tran_no", prof.EsimTranNo), zap.Error(err))
			continue
		}
		for _, up := range res.EsimList {
			if up.EsimTranNo != prof.EsimTranNo || up.EsimStatus == "" || up.EsimStatus == prof.Status {
				continue
			}
			if err := p.Profiles.UpdateStatus(ctx, prof.EsimTranNo, up.EsimStatus); err != nil {
				p.Log.Warn("profile status update failed", zap.String("esim_tran_no", prof.EsimTranNo), zap.Error(err))
			}
		}
	}
}
