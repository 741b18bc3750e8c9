package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = val
	return nil
}

type fakeUpstream struct {
	calls    []esimaccess.PackageListParams
	regions  int
	packages []esimaccess.Package
	err      error
}

func (f *fakeUpstream) ListAllPackages(_ context.Context, p esimaccess.PackageListParams) (*esimaccess.PackageList, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return &esimaccess.PackageList{PackageList: f.packages}, nil
}

func (f *fakeUpstream) ListSupportedRegions(context.Context) (*esimaccess.LocationList, error) {
	f.regions++
	if f.err != nil {
		return nil, f.err
	}
	return &esimaccess.LocationList{LocationList: []esimaccess.Location{{Code: "ES", Name: "Spain", Type: 1}}}, nil
}

func TestPackages_CachesPerLocationAndType(t *testing.T) {
	up := &fakeUpstream{packages: []esimaccess.Package{{PackageCode: "CKH491", Price: 5000}}}
	s := New(up, newMemCache(), time.Minute, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		pkgs, err := s.Packages(context.Background(), " es ", "")
		require.NoError(t, err)
		require.Len(t, pkgs, 1)
		assert.Equal(t, int64(5000), pkgs[0].Price)
	}

	require.Len(t, up.calls, 1)
	assert.Equal(t, esimaccess.PackageListParams{LocationCode: "ES", Type: esimaccess.PackageTypeBase}, up.calls[0])

	_, err := s.Packages(context.Background(), "ES", "topup")
	require.NoError(t, err)
	require.Len(t, up.calls, 2)
	assert.Equal(t, esimaccess.PackageTypeTopup, up.calls[1].Type)
}

func TestPackage_MatchesCodeOrSlug(t *testing.T) {
	up := &fakeUpstream{packages: []esimaccess.Package{{PackageCode: "CKH491", Slug: "ES_1_7"}}}
	s := New(up, nil, 0, nil)

	p, err := s.Package(context.Background(), "ES_1_7")
	require.NoError(t, err)
	assert.Equal(t, "CKH491", p.PackageCode)

	_, err = s.Package(context.Background(), "OTHER")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = s.Package(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestRegions_CacheFailureFallsThrough(t *testing.T) {
	up := &fakeUpstream{}
	cache := newMemCache()
	cache.err = errors.New("redis down")
	s := New(up, cache, time.Minute, zaptest.NewLogger(t))

	locs, err := s.Regions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ES", locs[0].Code)

	_, err = s.Regions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, up.regions)
}

func TestUpstreamErrorsAreNotCached(t *testing.T) {
	up := &fakeUpstream{err: &esimaccess.APIError{Code: "200005", Message: "bad"}}
	cache := newMemCache()
	s := New(up, cache, time.Minute, zaptest.NewLogger(t))

	_, err := s.Packages(context.Background(), "ES", "")
	var apiErr *esimaccess.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Empty(t, cache.data)
}
