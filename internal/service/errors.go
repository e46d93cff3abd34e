package service

import (
	"errors"
	"fmt"
	"strings"
)

// Platform error codes. Closed set: adapters never surface anything
// outside it.
const (
	ErrCodePermission   = "permission_missing"
	ErrCodeTokenExpired = "token_expired"
	ErrCodeNotFound     = "resource_not_found"
	ErrCodeTransient    = "transient"
	ErrCodeUnknown      = "publish_failed"
)

type PlatformError struct {
	Platform string
	Code     string
	Message  string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Code, e.Message)
}

// ReconnectRequired reports whether the user must reconnect the
// account to recover.
func (e *PlatformError) ReconnectRequired() bool {
	switch e.Code {
	case ErrCodePermission, ErrCodeTokenExpired, ErrCodeNotFound:
		return true
	}
	return false
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type MissingConnectionError struct {
	Platform string
}

func (e *MissingConnectionError) Error() string {
	return fmt.Sprintf("no connected %s account", e.Platform)
}

type InsufficientCreditsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %.2f, have %.2f", e.Required, e.Available)
}

var ErrPostNotCancellable = errors.New("POST_NOT_CANCELLABLE")

var ErrChainTooLong = errors.New("thread chain exceeds maximum number of parts")

// MapProviderError normalizes a raw provider failure into the closed
// taxonomy. An error that already carries a domain code passes through
// unchanged.
func MapProviderError(platform string, statusCode int, message string, err error) error {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return err
	}

	if message == "" && err != nil {
		message = err.Error()
	}
	lower := strings.ToLower(message)

	code := ErrCodeUnknown
	switch {
	case strings.Contains(lower, "permission"):
		code = ErrCodePermission
	case strings.Contains(lower, "expired") || strings.Contains(lower, "invalid oauth") ||
		strings.Contains(lower, "session has been invalidated") || statusCode == 401:
		code = ErrCodeTokenExpired
	case strings.Contains(lower, "resource does not exist") || strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist"):
		code = ErrCodeNotFound
	case statusCode >= 500 || strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "temporarily unavailable"):
		code = ErrCodeTransient
	}

	return &PlatformError{Platform: platform, Code: code, Message: message}
}
