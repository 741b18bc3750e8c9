package esimaccess

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds everything needed to build a ready Client.
type Config struct {
	BaseURL    string
	AccessCode string
	SecretKey  string
	Timeout    time.Duration

	BreakerThreshold int           // 0 disables the breaker
	BreakerOpenFor   time.Duration // default 15s

	RateLimitRPS   float64 // 0 disables pacing
	RateLimitBurst int
}

// New builds a signer and an *http.Client transport, wraps the transport in
// the enabled decorators and returns the client.
func New(cfg Config, logger *zap.Logger, observer Observer) (*Client, error) {
	signer, err := NewSigner(cfg.AccessCode, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var doer Doer = &http.Client{Timeout: timeout}
	if cfg.BreakerThreshold > 0 {
		doer = WithBreaker(doer, NewBreaker(cfg.BreakerThreshold, cfg.BreakerOpenFor))
	}

	opts := []Option{WithDoer(doer)}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger.Named("esimaccess")))
	}
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}
	return NewClient(cfg.BaseURL, signer, opts...)
}
