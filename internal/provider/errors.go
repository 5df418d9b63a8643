package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrReauthRequired means the credential is expired or revoked and
// cannot be refreshed; the user must reconnect the account.
var ErrReauthRequired = errors.New("provider: reauthorization required")

// ErrRateLimited means the provider throttled the call
var ErrRateLimited = errors.New("provider: rate limited")

// ErrUnavailable means a transient network or server failure
var ErrUnavailable = errors.New("provider: temporarily unavailable")

// ErrUnsupported means the operation is not valid for the platform
var ErrUnsupported = errors.New("provider: operation not supported")

// ErrNotFound means the message or attachment does not exist upstream
var ErrNotFound = errors.New("provider: not found")

// errFromStatus maps an HTTP response status to the error taxonomy
func errFromStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrReauthRequired, status, truncate(body))
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, truncate(body))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, truncate(body))
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, truncate(body))
	default:
		return fmt.Errorf("provider: unexpected status %d: %s", status, truncate(body))
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
