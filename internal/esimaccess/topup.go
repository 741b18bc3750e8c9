package esimaccess

import "context"

type TopupService service

func (s *TopupService) TopupProfile(ctx context.Context, req TopupRequest) (*TopupResult, error) {
	var out TopupResult
	if err := s.client.Post(ctx, PathTopup, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
