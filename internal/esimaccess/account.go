package esimaccess

import "context"

type AccountService service

// Balance returns the merchant balance. It doubles as a cheap credential check.
func (s *AccountService) Balance(ctx context.Context) (*Balance, error) {
	var out Balance
	if err := s.client.Post(ctx, PathBalanceQuery, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
