package domain

import (
	"context"
	"errors"
)

// Error kinds surfaced by the engagement core. Handlers map them to HTTP
// statuses; the scheduler's retry loop only ever retries the retryable ones.
var (
	// ErrAuthExpired is terminal for a user: the stored refresh token was
	// rejected and the user must re-authorize the WHOOP link.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrRateLimited is returned when an upstream throttled the call and the
	// in-request backoff budget ran out.
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrUpstreamUnavailable covers network failures and upstream 5xx.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrValidationFailed is terminal for a request: malformed input or a
	// caller that failed authentication.
	ErrValidationFailed = errors.New("request validation failed")

	// ErrDeadlineExceeded is returned when the request budget expired before
	// the work finished.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// Retryable reports whether the external caller should retry the trigger.
// AuthExpired and ValidationFailed must never be retried automatically.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAuthExpired), errors.Is(err, ErrValidationFailed):
		return false
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		// Unclassified failures are treated as transient so the scheduler's
		// outer loop gets a chance; idempotency ledgers make that safe.
		return true
	}
}
