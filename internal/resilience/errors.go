// Package resilience wraps single provider calls with a circuit breaker
// gate, a per-call timeout and bounded retry with backoff, and classifies
// errors into the categories that drive those decisions.
package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// Category classifies an error into the behaviour the wrapper applies to it.
type Category int

const (
	// Transient errors (timeouts, transport failures, 5xx) are retried with
	// exponential backoff.
	Transient Category = iota

	// RateLimited errors are retried after the provider-declared wait, or
	// the exponential schedule when none was declared.
	RateLimited

	// ClientError covers malformed or unauthenticated requests. Never retried.
	ClientError

	// ParseError covers responses that could not be decoded. Never retried.
	ParseError

	// Cancelled means the caller gave up. Never retried.
	Cancelled
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case ClientError:
		return "client_error"
	case ParseError:
		return "parse_error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this category may be retried.
func (c Category) Retryable() bool {
	return c == Transient || c == RateLimited
}

// transientSubstrings are error message substrings that indicate a transient
// failure when the error is not already classified by a structured type.
var transientSubstrings = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"eof",
	"service unavailable",
	"temporary",
	"i/o timeout",
}

// permanentSubstrings indicate a request the provider will never accept.
// "unauthorized" is used instead of "auth" which would match "author".
var permanentSubstrings = []string{
	"unauthorized",
	"forbidden",
	"bad request",
	"invalid api key",
	"invalid parameter",
}

// Classify inspects err and returns its Category.
//
// Classification priority:
//  1. Nil errors: ClientError (nothing to retry)
//  2. context.Canceled: Cancelled; context.DeadlineExceeded: Transient
//  3. Domain errors: rate limit, parse, client request, invalid input
//  4. Service unavailable and open circuits: Transient
//  5. Message substring matching, transient checked first
//  6. Default: Transient
func Classify(err error) Category {
	if err == nil {
		return ClientError
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled) {
		return Cancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return RateLimited
	case errors.Is(err, domain.ErrParse):
		return ParseError
	case errors.Is(err, domain.ErrClientRequest), errors.Is(err, domain.ErrInvalidInput):
		return ClientError
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrCircuitOpen):
		return Transient
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return RateLimited
	}
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return ClientError
		}
	}

	return Transient
}
