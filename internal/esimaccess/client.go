package esimaccess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://api.esimaccess.com/api/v1/open"
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 8 << 20
	maxErrorBody     = 512
)

// Call outcomes reported to the Observer.
const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeHTTPError      = "http_error"
	OutcomeAPIError       = "api_error"
	OutcomeDecodeError    = "decode_error"
)

// Doer executes HTTP requests. *http.Client satisfies it; resilience
// decorators wrap it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer is notified once per upstream call.
type Observer interface {
	ObserveRequest(path, outcome string, took time.Duration)
}

type service struct {
	client *Client
}

// Client is the signed transport shared by every service. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	baseURL  string
	signer   *Signer
	doer     Doer
	logger   *zap.Logger
	observer Observer
	limiter  *rate.Limiter

	common service

	Packages *PackagesService
	Orders   *OrdersService
	Profiles *ProfilesService
	Topup    *TopupService
	Usage    *UsageService
	Account  *AccountService
}

type Option func(*Client)

func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient wires the services around a single signer and transport.
func NewClient(baseURL string, signer *Signer, opts ...Option) (*Client, error) {
	if signer == nil {
		return nil, fmt.Errorf("esimaccess: signer is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		signer:  signer,
		doer:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.common.client = c
	c.Packages = (*PackagesService)(&c.common)
	c.Orders = (*OrdersService)(&c.common)
	c.Profiles = (*ProfilesService)(&c.common)
	c.Topup = (*TopupService)(&c.common)
	c.Usage = (*UsageService)(&c.common)
	c.Account = (*AccountService)(&c.common)

	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Post signs and sends payload to path and decodes the envelope's obj into
// out. A nil payload sends no body. The marshalled bytes are signed and
// transmitted as-is.
func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("esimaccess: marshal %s payload: %w", path, err)
		}
		body = b
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("esimaccess: rate limit wait %s: %w", path, err)
		}
	}

	signed := c.signer.Sign(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("esimaccess: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	signed.Apply(req.Header)

	start := time.Now()
	res, err := c.doer.Do(req)
	if err != nil {
		c.finish(path, signed.RequestID, 0, OutcomeTransportError, start)
		return fmt.Errorf("esimaccess: post %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		c.finish(path, signed.RequestID, res.StatusCode, OutcomeTransportError, start)
		return fmt.Errorf("esimaccess: read %s response: %w", path, err)
	}

	if res.StatusCode/100 != 2 {
		c.finish(path, signed.RequestID, res.StatusCode, OutcomeHTTPError, start)
		return &HTTPError{Path: path, StatusCode: res.StatusCode, Body: truncate(raw, maxErrorBody)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.finish(path, signed.RequestID, res.StatusCode, OutcomeDecodeError, start)
		return fmt.Errorf("esimaccess: decode %s envelope: %w", path, err)
	}
	if !env.Success {
		c.finish(path, signed.RequestID, res.StatusCode, OutcomeAPIError, start)
		return &APIError{Path: path, Code: string(env.ErrorCode), Message: env.ErrorMsg}
	}

	if out != nil && len(env.Obj) > 0 && !bytes.Equal(env.Obj, []byte("null")) {
		if err := json.Unmarshal(env.Obj, out); err != nil {
			c.finish(path, signed.RequestID, res.StatusCode, OutcomeDecodeError, start)
			return fmt.Errorf("esimaccess: decode %s obj: %w", path, err)
		}
	}

	c.finish(path, signed.RequestID, res.StatusCode, OutcomeOK, start)
	return nil
}

func (c *Client) finish(path, requestID string, status int, outcome string, start time.Time) {
	took := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveRequest(path, outcome, took)
	}
	c.logger.Debug("esimaccess call",
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", status),
		zap.String("outcome", outcome),
		zap.Duration("took", took),
	)
}

type envelope struct {
	Success   bool            `json:"success"`
	ErrorCode errorCode       `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Obj       json.RawMessage `json:"obj"`
}

// errorCode accepts both "200007" and 200007.
type errorCode string

func (e *errorCode) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = errorCode(s)
		return nil
	}
	*e = errorCode(b)
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
