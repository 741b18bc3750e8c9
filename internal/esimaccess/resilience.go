package esimaccess

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"
)

type breakerDoer struct {
	next Doer
	br   *Breaker
}

// WithBreaker short-circuits calls with ErrCircuitOpen while br is open.
// Transport errors and 5xx responses count as failures; caller
// cancellation does not.
func WithBreaker(next Doer, br *Breaker) Doer {
	return &breakerDoer{next: next, br: br}
}

func (d *breakerDoer) Do(req *http.Request) (*http.Response, error) {
	if !d.br.TryAcquire() {
		return nil, ErrCircuitOpen
	}

	res, err := d.next.Do(req)
	switch {
	case errors.Is(err, context.Canceled):
		d.br.Abandon()
	case err != nil:
		d.br.OnFailure()
	case res.StatusCode >= http.StatusInternalServerError:
		d.br.OnFailure()
	default:
		d.br.OnSuccess()
	}
	return res, err
}

// WithRateLimit paces outgoing calls to rps with the given burst. The wait
// happens before the request is signed so RT-Timestamp reflects send time.
func WithRateLimit(rps float64, burst int) Option {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *Client) { c.limiter = lim }
}
