package esimaccess

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyAccessCode = errors.New("esimaccess: empty access code")
	ErrEmptySecretKey  = errors.New("esimaccess: empty secret key")
)

// SignedHeaders is the per-request authentication material. It is built
// fresh for every call and never stored.
type SignedHeaders struct {
	AccessCode string
	Timestamp  string
	RequestID  string
	Signature  string
}

// Apply writes the RT-* headers onto h.
func (s SignedHeaders) Apply(h http.Header) {
	h.Set(HeaderAccessCode, s.AccessCode)
	h.Set(HeaderTimestamp, s.Timestamp)
	h.Set(HeaderRequestID, s.RequestID)
	h.Set(HeaderSignature, s.Signature)
}

// Signer derives RT-* headers from the shared secret. It is safe for
// concurrent use; all fields are read-only after construction.
type Signer struct {
	accessCode string
	secretKey  string
	now        func() time.Time
	newID      func() string
}

type SignerOption func(*Signer)

// WithClock overrides the time source used for RT-Timestamp.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// WithRequestIDFunc overrides the nonce generator used for RT-RequestID.
func WithRequestIDFunc(fn func() string) SignerOption {
	return func(s *Signer) { s.newID = fn }
}

func NewSigner(accessCode, secretKey string, opts ...SignerOption) (*Signer, error) {
	if strings.TrimSpace(accessCode) == "" {
		return nil, ErrEmptyAccessCode
	}
	if secretKey == "" {
		return nil, ErrEmptySecretKey
	}

	s := &Signer{
		accessCode: accessCode,
		secretKey:  secretKey,
		now:        time.Now,
		newID:      NewRequestID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessCode returns the public identifier the signer was built with.
func (s *Signer) AccessCode() string { return s.accessCode }

func (s *Signer) String() string {
	return "Signer{accessCode=" + s.accessCode + ", secretKey=<redacted>}"
}

// Sign builds headers for body, which must be the exact bytes that will be
// sent on the wire. A nil or empty body signs the empty string.
func (s *Signer) Sign(body []byte) SignedHeaders {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	rid := s.newID()

	return SignedHeaders{
		AccessCode: s.accessCode,
		Timestamp:  ts,
		RequestID:  rid,
		Signature:  ComputeSignature(s.secretKey, ts, rid, s.accessCode, string(body)),
	}
}

// NewRequestID returns a random UUIDv4 without dashes (32 lowercase hex chars).
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SignData is the string covered by the signature:
// timestamp + requestId + accessCode + body, no delimiters.
func SignData(timestamp, requestID, accessCode, body string) string {
	var sb strings.Builder
	sb.Grow(len(timestamp) + len(requestID) + len(accessCode) + len(body))
	sb.WriteString(timestamp)
	sb.WriteString(requestID)
	sb.WriteString(accessCode)
	sb.WriteString(body)
	return sb.String()
}

// ComputeSignature returns lowercase hex HMAC-SHA256 of SignData keyed by secretKey.
func ComputeSignature(secretKey, timestamp, requestID, accessCode, body string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(SignData(timestamp, requestID, accessCode, body)))
	return strings.ToLower(hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature recomputes the signature and compares it in constant time.
func VerifySignature(secretKey, timestamp, requestID, accessCode, body, signature string) bool {
	expected := ComputeSignature(secretKey, timestamp, requestID, accessCode, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
