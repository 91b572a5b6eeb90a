package weather

import (
	"context"
	"errors"
	"strings"
)

// Error taxonomy surfaced by the client. Callers branch with errors.Is.
var (
	// ErrLocationNotFound means the provider reports no match for the
	// requested name or coordinates. Not retryable.
	ErrLocationNotFound = errors.New("location not found")

	// ErrNetwork is a transport-level failure or timeout: no usable
	// response was received.
	ErrNetwork = errors.New("network failure")

	// ErrUpstream is any non-success provider response other than
	// not-found (5xx, unexpected status).
	ErrUpstream = errors.New("upstream failure")

	// ErrRateLimited is the provider's HTTP 429. Handled like ErrUpstream
	// for retry purposes but kept distinguishable for diagnostics.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidAPIKey is the provider's HTTP 401. Not retryable.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// IsRetryable reports whether a fetch error is worth one more attempt:
// transport failures, timeouts, rate limiting and upstream 5xx are; a
// not-found or rejected key is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLocationNotFound) || errors.Is(err, ErrInvalidAPIKey) {
		return false
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal).
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}
	if errors.Is(err, ErrLocationNotFound) {
		return ErrorCategoryLocationNotFound
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}
	if errors.Is(err, ErrUpstream) {
		return ErrorCategoryUpstream5xx
	}
	if errors.Is(err, ErrNetwork) {
		return ErrorCategoryNetwork
	}
	if errors.Is(err, ErrNameEmpty) || errors.Is(err, ErrNameTooLong) ||
		errors.Is(err, ErrNameInvalidChars) || errors.Is(err, ErrCoordinatesOutOfRange) {
		return ErrorCategoryValidation
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") || strings.Contains(errStr, "decode") {
		return ErrorCategoryParsing
	}

	return ErrorCategoryUnknown
}
