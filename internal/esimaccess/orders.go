package esimaccess

import "context"

type OrdersService service

// OrderProfiles places an order. There is no retry: a second call with the
// same TransactionID is left to the provider to reject.
func (s *OrdersService) OrderProfiles(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	var out OrderResult
	if err := s.client.Post(ctx, PathOrder, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
