package esimaccess

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func statusResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func TestWithBreaker_ShortCircuitsWhenOpen(t *testing.T) {
	calls := 0
	next := doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return statusResponse(http.StatusServiceUnavailable), nil
	})
	br := NewBreaker(2, time.Hour)
	d := WithBreaker(next, br)

	req, err := http.NewRequest(http.MethodPost, "http://upstream/esim/order", nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := d.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	}

	_, err = d.Do(req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestWithBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	next := doerFunc(func(*http.Request) (*http.Response, error) {
		return statusResponse(http.StatusBadRequest), nil
	})
	br := NewBreaker(1, time.Hour)
	d := WithBreaker(next, br)

	req, err := http.NewRequest(http.MethodPost, "http://upstream/esim/query", nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := d.Do(req)
		require.NoError(t, err)
	}
	assert.Equal(t, BreakerClosed, br.State())
}

func TestWithBreaker_TransportErrorTrips(t *testing.T) {
	next := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	br := NewBreaker(1, time.Hour)
	d := WithBreaker(next, br)

	req, err := http.NewRequest(http.MethodPost, "http://upstream/esim/query", nil)
	require.NoError(t, err)
	_, err = d.Do(req)
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, br.State())
}

func TestClient_BreakerErrorSurfacesThroughPost(t *testing.T) {
	br := NewBreaker(1, time.Hour)
	br.OnFailure()

	called := false
	next := doerFunc(func(*http.Request) (*http.Response, error) {
		called = true
		return statusResponse(http.StatusOK), nil
	})
	c := newTestClient(t, "http://upstream", WithDoer(WithBreaker(next, br)))

	_, err := c.Orders.OrderProfiles(context.Background(), OrderRequest{TransactionID: "T"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestWithRateLimit_WaitsBeforeSigning(t *testing.T) {
	calls := 0
	next := doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(okEmpty)),
		}, nil
	})

	signed := 0
	signer, err := NewSigner("ACC123", "secret", WithClock(func() time.Time {
		signed++
		return time.UnixMilli(1700000000000)
	}))
	require.NoError(t, err)
	c, err := NewClient("http://upstream", signer, WithDoer(next), WithRateLimit(0.001, 1))
	require.NoError(t, err)

	require.NoError(t, c.Post(context.Background(), PathQuery, QueryParams{}, nil))
	assert.Equal(t, 1, signed)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Post(ctx, PathQuery, QueryParams{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")

	// a request stuck behind the limiter is never signed or sent
	assert.Equal(t, 1, signed)
	assert.Equal(t, 1, calls)
}
