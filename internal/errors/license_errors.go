package errors

import (
	"errors"
)

// License-specific sentinel errors for errors.Is checks across the
// service and transport layers.
var (
	ErrLicenseExpired      = errors.New("license expired")
	ErrLicenseNotActivated = errors.New("license not activated")
	ErrInvalidLicenseKey   = errors.New("invalid license key")
	ErrRateLimited         = errors.New("rate limited")
	ErrNetworkError        = errors.New("network error")
	ErrServerError         = errors.New("license server error")
	ErrActivationFailed    = errors.New("activation failed")
	ErrCacheIntegrity      = errors.New("license cache integrity check failed")
)

// IsTransient reports whether the error is a transient verification
// failure, i.e. one eligible for cache fallback and retry, as opposed
// to an authoritative rejection by the license authority.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkError) || errors.Is(err, ErrServerError)
}
