package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmehdipour/esim-gateway/internal/esimaccess"
	"go.uber.org/zap"
)

var ErrPackageNotFound = errors.New("catalog: package not found")

// Upstream is the part of the packages API the catalog reads from.
// *esimaccess.PackagesService satisfies it.
type Upstream interface {
	ListAllPackages(ctx context.Context, p esimaccess.PackageListParams) (*esimaccess.PackageList, error)
	ListSupportedRegions(ctx context.Context) (*esimaccess.LocationList, error)
}

// Service is a read-through cache over the provider catalog. Cache
// failures are logged and fall through to upstream.
type Service struct {
	up    Upstream
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func New(up Upstream, cache Cache, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{up: up, cache: cache, ttl: ttl, log: log}
}

// Packages lists plans for a location and type. An empty type means BASE.
func (s *Service) Packages(ctx context.Context, location, typ string) ([]esimaccess.Package, error) {
	location = strings.ToUpper(strings.TrimSpace(location))
	typ = strings.ToUpper(strings.TrimSpace(typ))
	if typ == "" {
		typ = esimaccess.PackageTypeBase
	}

	var out []esimaccess.Package
	err := s.readThrough(ctx, "packages:"+location+":"+typ, &out, func() (any, error) {
		res, err := s.up.ListAllPackages(ctx, esimaccess.PackageListParams{
			LocationCode: location,
			Type:         typ,
		})
		if err != nil {
			return nil, err
		}
		return res.PackageList, nil
	})
	return out, err
}

// Package resolves a single plan by package code or slug.
func (s *Service) Package(ctx context.Context, code string) (*esimaccess.Package, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrPackageNotFound
	}

	var out []esimaccess.Package
	err := s.readThrough(ctx, "package:"+code, &out, func() (any, error) {
		res, err := s.up.ListAllPackages(ctx, esimaccess.PackageListParams{PackageCode: code})
		if err != nil {
			return nil, err
		}
		return res.PackageList, nil
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].PackageCode == code || out[i].Slug == code {
			return &out[i], nil
		}
	}
	return nil, ErrPackageNotFound
}

func (s *Service) Regions(ctx context.Context) ([]esimaccess.Location, error) {
	var out []esimaccess.Location
	err := s.readThrough(ctx, "regions", &out, func() (any, error) {
		res, err := s.up.ListSupportedRegions(ctx)
		if err != nil {
			return nil, err
		}
		return res.LocationList, nil
	})
	return out, err
}

func (s *Service) readThrough(ctx context.Context, key string, dst any, load func() (any, error)) error {
	if s.cache != nil {
		b, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			if jerr := json.Unmarshal(b, dst); jerr == nil {
				return nil
			}
			s.log.Warn("catalog cache entry unreadable", zap.String("key", key))
		case !errors.Is(err, ErrCacheMiss):
			s.log.Warn("catalog cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, err := load()
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			s.log.Warn("catalog cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return json.Unmarshal(b, dst)
}
