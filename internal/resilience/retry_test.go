package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-search-engine/internal/domain"
)

func TestRetryPolicy_Defaults(t *testing.T) {
	var p RetryPolicy
	p.applyDefaults()
	assert.Equal(t, DefaultRetryPolicy(), p)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:       4,
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        300 * time.Millisecond,
		MaxRetryAfter:     10 * time.Second,
	}
	transient := errors.New("connection reset")

	tests := []struct {
		name     string
		attempt  int
		err      error
		expected time.Duration
	}{
		{"first retry", 0, transient, 100 * time.Millisecond},
		{"second retry doubles", 1, transient, 200 * time.Millisecond},
		{"capped at max backoff", 2, transient, 300 * time.Millisecond},
		{"declared retry-after wins", 0, domain.NewRateLimitError("openalex", 3*time.Second), 3 * time.Second},
		{"retry-after is capped", 0, domain.NewRateLimitError("openalex", time.Minute), 10 * time.Second},
		{"rate limit without retry-after backs off", 1, domain.NewRateLimitError("openalex", 0), 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.Delay(tt.attempt, tt.err))
		})
	}
}
