package resilience

import (
	"errors"
	"time"

	"github.com/helixir/paper-search-engine/internal/domain"
)

// RetryPolicy bounds the retries of one provider call.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier controls exponential growth of the backoff interval.
	BackoffMultiplier float64

	// MaxBackoff caps the exponential backoff interval.
	MaxBackoff time.Duration

	// MaxRetryAfter caps a provider-declared Retry-After wait.
	MaxRetryAfter time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        8 * time.Second,
		MaxRetryAfter:     30 * time.Second,
	}
}

func (p *RetryPolicy) applyDefaults() {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = def.BackoffMultiplier
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxRetryAfter <= 0 {
		p.MaxRetryAfter = def.MaxRetryAfter
	}
}

// Delay returns the wait before retry number attempt (0-indexed) after err.
// A rate limit that declared Retry-After waits that long, capped at
// MaxRetryAfter; everything else follows the exponential schedule.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		if rl.RetryAfter > p.MaxRetryAfter {
			return p.MaxRetryAfter
		}
		return rl.RetryAfter
	}
	return p.backoffForAttempt(attempt)
}

// backoffForAttempt computes the backoff duration for the given attempt (0-indexed).
func (p RetryPolicy) backoffForAttempt(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	return backoff
}
