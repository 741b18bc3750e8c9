package esimaccess

import (
	"errors"
	"fmt"
)

var ErrCircuitOpen = errors.New("esimaccess: circuit open")

// CodeDuplicateTransaction is returned by /esim/order when transactionId was
// already used for an order.
const CodeDuplicateTransaction = "200010"

// HTTPError is returned for any non-2xx upstream status.
type HTTPError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("esimaccess: path=%s status=%d body=%q", e.Path, e.StatusCode, e.Body)
}

// APIError is a provider-level failure carried in a 2xx envelope
// ({"success": false, "errorCode": ..., "errorMsg": ...}).
type APIError struct {
	Path    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("esimaccess: path=%s code=%s msg=%s", e.Path, e.Code, e.Message)
}

// IsAPIError reports whether err carries a provider error with the given code.
// An empty code matches any provider error.
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return code == "" || apiErr.Code == code
}
