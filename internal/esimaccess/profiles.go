package esimaccess

import "context"

// ProfilesService drives lifecycle transitions of issued eSIMs. Whether a
// transition is legal is decided upstream.
type ProfilesService service

func (s *ProfilesService) Cancel(ctx context.Context, action ProfileAction) error {
	return s.client.Post(ctx, PathCancel, action, nil)
}

func (s *ProfilesService) Suspend(ctx context.Context, action ProfileAction) error {
	return s.client.Post(ctx, PathSuspend, action, nil)
}

func (s *ProfilesService) Unsuspend(ctx context.Context, action ProfileAction) error {
	return s.client.Post(ctx, PathUnsuspend, action, nil)
}

func (s *ProfilesService) Revoke(ctx context.Context, action ProfileAction) error {
	return s.client.Post(ctx, PathRevoke, action, nil)
}
