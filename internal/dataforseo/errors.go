package dataforseo

import (
	"errors"
	"fmt"
)

// API status codes reported in response envelopes.
const (
	statusOK                  = 20000
	statusAuthFailed          = 40101
	statusInsufficientCredits = 40102
	statusRateLimited         = 40401
)

var (
	// ErrAuthentication means the configured credentials were rejected.
	// Never retried.
	ErrAuthentication = errors.New("dataforseo: authentication failed")

	// ErrInsufficientQuota means the account has no credits left for the
	// requested endpoint. Never retried.
	ErrInsufficientQuota = errors.New("dataforseo: insufficient credits")

	// ErrRateLimited means the API rejected the call for exceeding its own
	// limits. Retried with exponential backoff.
	ErrRateLimited = errors.New("dataforseo: rate limit exceeded")

	// ErrTransient covers network failures and timeouts. Retried with
	// exponential backoff.
	ErrTransient = errors.New("dataforseo: transient network error")
)

// APIError carries the literal status code and message of a non-success
// response that does not map onto one of the sentinel categories.
type APIError struct {
	Endpoint      string
	StatusCode    int
	StatusMessage string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dataforseo: %s returned %d: %s", e.Endpoint, e.StatusCode, e.StatusMessage)
}

// Retryable reports whether err belongs to a retryable category.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
