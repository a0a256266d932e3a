package services

import (
	"errors"

	"google.golang.org/api/googleapi"
)

// Error kinds surfaced by the core. Storage errors are recoverable by
// retrying the operation; remote errors never block local state; auth
// errors are surfaced distinctly and not retried here.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input provided")
	ErrStorage            = errors.New("cache storage failure")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrUnauthorized       = errors.New("unauthorized access")
)

// IsAuthError reports whether an error is an authentication/authorization
// failure from the remote service.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == 401 || ge.Code == 403
	}
	return false
}

// IsRetryableError determines if an error should be retried on a later pass
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrStorage)
}
