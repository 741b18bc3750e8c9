package esimaccess

import "context"

// UsageService reads status and consumption of issued eSIMs.
type UsageService service

func (s *UsageService) QueryProfiles(ctx context.Context, params QueryParams) (*ProfileList, error) {
	var out ProfileList
	if err := s.client.Post(ctx, PathQuery, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUsage posts {"esimTranNoList": [...]} to /esim/usage/query.
func (s *UsageService) GetUsage(ctx context.Context, esimTranNoList []string) (*UsageList, error) {
	if esimTranNoList == nil {
		esimTranNoList = []string{}
	}
	var out UsageList
	if err := s.client.Post(ctx, PathUsageQuery, usageRequest{EsimTranNoList: esimTranNoList}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
