package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/jmehdipour/esim-gateway/internal/model"
	"github.com/jmehdipour/esim-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeQuerier struct {
	profiles   map[string][]esimaccess.Profile // by orderNo
	statuses   map[string]string               // by esimTranNo
	queried    []esimaccess.QueryParams
	usageCalls [][]string
	usageErr   error
}

func (f *fakeQuerier) QueryProfiles(_ context.Context, p esimaccess.QueryParams) (*esimaccess.ProfileList, error) {
	f.queried = append(f.queried, p)
	if p.EsimTranNo != "" {
		out := &esimaccess.ProfileList{}
		if st, ok := f.statuses[p.EsimTranNo]; ok {
			out.EsimList = append(out.EsimList, esimaccess.Profile{EsimTranNo: p.EsimTranNo, EsimStatus: st})
		}
		return out, nil
	}

	all, ok := f.profiles[p.OrderNo]
	if !ok {
		return nil, &esimaccess.APIError{Code: "310272", Message: "order not ready"}
	}
	start := (p.Pager.PageNum - 1) * p.Pager.PageSize
	end := min(start+p.Pager.PageSize, len(all))
	if start > len(all) {
		start = len(all)
	}
	return &esimaccess.ProfileList{
		EsimList: all[start:end],
		Pager:    esimaccess.Pager{PageNum: p.Pager.PageNum, PageSize: p.Pager.PageSize, Total: len(all)},
	}, nil
}

func (f *fakeQuerier) GetUsage(_ context.Context, ids []string) (*esimaccess.UsageList, error) {
	f.usageCalls = append(f.usageCalls, append([]string(nil), ids...))
	if f.usageErr != nil {
		return nil, f.usageErr
	}
	out := &esimaccess.UsageList{}
	for i, id := range ids {
		out.EsimUsageList = append(out.EsimUsageList, esimaccess.Usage{
			EsimTranNo: id,
			DataUsage:  int64(1000 * (i + 1)),
			TotalData:  1 << 30,
		})
	}
	return out, nil
}

// fakeOrdersRepo lists placed orders by id. With profiles set, orders that
// already have Count synced eSIMs are skipped.
type fakeOrdersRepo struct {
	repository.OrdersRepository
	placed   []model.Order
	profiles *fakeProfilesRepo
}

func (f *fakeOrdersRepo) ListPlacedMissingProfiles(_ context.Context, after string, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, o := range f.placed {
		if o.ID <= after {
			continue
		}
		if f.profiles != nil && f.profiles.countByOrder(o.ID) >= o.Count {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeProfilesRepo struct {
	repository.ProfilesRepository
	rows    map[string]model.ESIMProfile
	updated map[string]int64
}

func newFakeProfilesRepo() *fakeProfilesRepo {
	return &fakeProfilesRepo{rows: map[string]model.ESIMProfile{}, updated: map[string]int64{}}
}

func (f *fakeProfilesRepo) Upsert(_ context.Context, p model.ESIMProfile) error {
	f.rows[p.EsimTranNo] = p
	return nil
}

func (f *fakeProfilesRepo) countByOrder(orderID string) int {
	n := 0
	for _, p := range f.rows {
		if p.OrderID == orderID {
			n++
		}
	}
	return n
}

var fakeTerminal = map[string]bool{"CANCEL": true, "REVOKED": true, "USED_EXPIRED": true, "UNUSED_EXPIRED": true}

func (f *fakeProfilesRepo) ListActive(_ context.Context, after string, limit int) ([]model.ESIMProfile, error) {
	keys := make([]string, 0, len(f.rows))
	for k, p := range f.rows {
		if k > after && !fakeTerminal[p.Status] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]model.ESIMProfile, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.rows[k])
	}
	return out, nil
}

func (f *fakeProfilesRepo) UpdateStatus(_ context.Context, tranNo, status string) error {
	p := f.rows[tranNo]
	p.Status = status
	f.rows[tranNo] = p
	return nil
}

func (f *fakeProfilesRepo) UpdateUsage(_ context.Context, tranNo string, dataUsage, _ int64) error {
	f.updated[tranNo] = dataUsage
	return nil
}

type fakeSnapshots struct {
	repository.CHUsageRepository
	rows []model.UsageSnapshot
}

func (f *fakeSnapshots) InsertSnapshots(_ context.Context, rows []model.UsageSnapshot) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func strptr(s string) *string { return &s }

func TestSyncProfiles_UpsertsAllPages(t *testing.T) {
	var issued []esimaccess.Profile
	for i := 0; i < 5; i++ {
		issued = append(issued, esimaccess.Profile{
			EsimTranNo: fmt.Sprintf("T%02d", i),
			ICCID:      "8944 4770 0000 0000 00" + fmt.Sprint(i),
			EsimStatus: "GOT_RESOURCE",
		})
	}
	up := &fakeQuerier{profiles: map[string][]esimaccess.Profile{"B1": issued}}
	profiles := newFakeProfilesRepo()
	p := &UsagePoller{
		Upstream: up,
		Orders: &fakeOrdersRepo{placed: []model.Order{
			{ID: "O1", CustomerID: 9, ProviderNo: strptr("B1")},
			{ID: "O2", CustomerID: 9, ProviderNo: strptr("NOT_READY")},
			{ID: "O3", CustomerID: 9},
		}},
		Profiles: profiles,
		Log:      zaptest.NewLogger(t),
		PageSize: 2,
	}
	p.defaults()

	require.NoError(t, p.SyncProfiles(context.Background()))

	require.Len(t, profiles.rows, 5)
	got := profiles.rows["T03"]
	assert.Equal(t, "O1", got.OrderID)
	assert.Equal(t, int64(9), got.CustomerID)
	assert.Equal(t, "8944477000000000003", got.ICCID)
}

func TestSyncProfiles_PicksUpLateAllocations(t *testing.T) {
	profile := func(i int) esimaccess.Profile {
		return esimaccess.Profile{EsimTranNo: fmt.Sprintf("T%02d", i), ICCID: fmt.Sprintf("89444770000000000%02d", i), EsimStatus: "GOT_RESOURCE"}
	}
	// only one of three eSIMs is allocated at the first sync
	up := &fakeQuerier{profiles: map[string][]esimaccess.Profile{"B1": {profile(0)}}}
	profiles := newFakeProfilesRepo()
	p := &UsagePoller{
		Upstream: up,
		Orders: &fakeOrdersRepo{
			placed:   []model.Order{{ID: "O1", CustomerID: 9, Count: 3, ProviderNo: strptr("B1")}},
			profiles: profiles,
		},
		Profiles: profiles,
		Log:      zaptest.NewLogger(t),
		PageSize: 2,
	}
	p.defaults()
	ctx := context.Background()

	require.NoError(t, p.SyncProfiles(ctx))
	require.Len(t, profiles.rows, 1)

	up.profiles["B1"] = []esimaccess.Profile{profile(0), profile(1), profile(2)}
	require.NoError(t, p.SyncProfiles(ctx))
	require.Len(t, profiles.rows, 3)
	assert.Equal(t, "O1", profiles.rows["T02"].OrderID)

	// a fully synced order is no longer queried
	calls := len(up.queried)
	require.NoError(t, p.SyncProfiles(ctx))
	assert.Len(t, up.queried, calls)
}

func TestSyncProfiles_PagesThroughPendingOrders(t *testing.T) {
	up := &fakeQuerier{profiles: map[string][]esimaccess.Profile{}}
	var placed []model.Order
	for i := 0; i < 5; i++ {
		no := fmt.Sprintf("B%d", i)
		placed = append(placed, model.Order{ID: fmt.Sprintf("O%d", i), Count: 1, ProviderNo: strptr(no)})
		up.profiles[no] = []esimaccess.Profile{{EsimTranNo: fmt.Sprintf("T%d", i)}}
	}
	profiles := newFakeProfilesRepo()
	p := &UsagePoller{
		Upstream: up,
		Orders:   &fakeOrdersRepo{placed: placed, profiles: profiles},
		Profiles: profiles,
		Log:      zaptest.NewLogger(t),
		PageSize: 2,
	}
	p.defaults()

	require.NoError(t, p.SyncProfiles(context.Background()))
	assert.Len(t, profiles.rows, 5)
}

func TestPollUsage_RefreshesStatusAndSkipsTerminal(t *testing.T) {
	profiles := newFakeProfilesRepo()
	profiles.rows["T01"] = model.ESIMProfile{EsimTranNo: "T01", Status: "IN_USE"}
	profiles.rows["T02"] = model.ESIMProfile{EsimTranNo: "T02", Status: "IN_USE"}
	up := &fakeQuerier{statuses: map[string]string{"T01": "REVOKED", "T02": "IN_USE"}}
	snaps := &fakeSnapshots{}

	p := &UsagePoller{Upstream: up, Profiles: profiles, Snapshots: snaps, Log: zaptest.NewLogger(t)}
	p.defaults()
	ctx := context.Background()

	require.NoError(t, p.PollUsage(ctx))
	assert.Equal(t, "REVOKED", profiles.rows["T01"].Status)
	assert.Equal(t, "IN_USE", profiles.rows["T02"].Status)
	require.Len(t, up.usageCalls, 1)
	assert.ElementsMatch(t, []string{"T01", "T02"}, up.usageCalls[0])

	// the revoked eSIM is no longer polled
	require.NoError(t, p.PollUsage(ctx))
	require.Len(t, up.usageCalls, 2)
	assert.Equal(t, []string{"T02"}, up.usageCalls[1])
}

func TestPollUsage_BatchesAndRecordsSnapshots(t *testing.T) {
	profiles := newFakeProfilesRepo()
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("T%02d", i)
		profiles.rows[id] = model.ESIMProfile{EsimTranNo: id, CustomerID: 3, ICCID: "89" + id}
	}
	up := &fakeQuerier{}
	snaps := &fakeSnapshots{}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	p := &UsagePoller{
		Upstream:  up,
		Profiles:  profiles,
		Snapshots: snaps,
		Log:       zaptest.NewLogger(t),
		BatchSize: 10,
		PageSize:  20,
		Now:       func() time.Time { return at },
	}
	p.defaults()

	require.NoError(t, p.PollUsage(context.Background()))

	// page 1: 20 rows -> 10+10, page 2: 5 rows
	require.Len(t, up.usageCalls, 3)
	assert.Len(t, up.usageCalls[0], 10)
	assert.Len(t, up.usageCalls[2], 5)

	require.Len(t, snaps.rows, 25)
	assert.Equal(t, at, snaps.rows[0].ObservedAt)
	assert.Equal(t, int64(3), snaps.rows[0].CustomerID)
	assert.Len(t, profiles.updated, 25)
}

func TestPollUsage_StopsOnUpstreamError(t *testing.T) {
	profiles := newFakeProfilesRepo()
	profiles.rows["T01"] = model.ESIMProfile{EsimTranNo: "T01"}
	up := &fakeQuerier{usageErr: errors.New("boom")}
	snaps := &fakeSnapshots{}

	p := &UsagePoller{Upstream: up, Profiles: profiles, Snapshots: snaps, Log: zaptest.NewLogger(t)}
	p.defaults()

	assert.Error(t, p.PollUsage(context.Background()))
	assert.Empty(t, snaps.rows)
}
