package esimaccess

import "context"

// PackagesService lists data plans and supported regions.
type PackagesService service

// ListAllPackages posts params to /package/list unchanged.
func (s *PackagesService) ListAllPackages(ctx context.Context, params PackageListParams) (*PackageList, error) {
	var out PackageList
	if err := s.client.Post(ctx, PathPackageList, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPackagesByLocation lists base plans sold for locationCode.
func (s *PackagesService) ListPackagesByLocation(ctx context.Context, locationCode string) (*PackageList, error) {
	return s.ListAllPackages(ctx, PackageListParams{LocationCode: locationCode, Type: PackageTypeBase})
}

// ListTopupPlans lists top-up plans; Type in params is always overridden.
func (s *PackagesService) ListTopupPlans(ctx context.Context, params PackageListParams) (*PackageList, error) {
	params.Type = PackageTypeTopup
	return s.ListAllPackages(ctx, params)
}

// GetPackageDetails looks up one package. The provider resolves both
// package codes and slugs through the packageCode filter.
func (s *PackagesService) GetPackageDetails(ctx context.Context, packageCodeOrSlug string) (*PackageList, error) {
	return s.ListAllPackages(ctx, PackageListParams{PackageCode: packageCodeOrSlug})
}

// ListSupportedRegions posts to /location/list with no body.
func (s *PackagesService) ListSupportedRegions(ctx context.Context) (*LocationList, error) {
	var out LocationList
	if err := s.client.Post(ctx, PathLocationList, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
