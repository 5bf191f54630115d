package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/paper-search-engine/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil", nil, ClientError},
		{"context cancelled", context.Canceled, Cancelled},
		{"wrapped cancel", fmt.Errorf("search: %w", context.Canceled), Cancelled},
		{"deadline exceeded", context.DeadlineExceeded, Transient},
		{"rate limit", domain.NewRateLimitError("openalex", 5*time.Second), RateLimited},
		{"wrapped rate limit", fmt.Errorf("call: %w", domain.NewRateLimitError("arxiv", 0)), RateLimited},
		{"parse", domain.NewParseError("pubmed", errors.New("unexpected EOF")), ParseError},
		{"bad request", domain.NewExternalAPIError("scopus", http.StatusBadRequest, "bad", nil), ClientError},
		{"unauthorized", domain.NewExternalAPIError("scopus", http.StatusUnauthorized, "no key", nil), ClientError},
		{"forbidden", domain.NewExternalAPIError("scopus", http.StatusForbidden, "denied", nil), ClientError},
		{"not found", domain.NewExternalAPIError("openalex", http.StatusNotFound, "missing", nil), Transient},
		{"server error", domain.NewExternalAPIError("openalex", http.StatusBadGateway, "bad gateway", nil), Transient},
		{"validation", domain.NewValidationError("query", "empty"), ClientError},
		{"circuit open", domain.ErrCircuitOpen, Transient},
		{"message rate limit", errors.New("upstream says: rate limit reached"), RateLimited},
		{"message connection reset", errors.New("read tcp: connection reset by peer"), Transient},
		{"message forbidden", errors.New("forbidden resource"), ClientError},
		{"author is not auth", errors.New("author list malformed"), Transient},
		{"unknown", errors.New("something odd"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestCategory_Retryable(t *testing.T) {
	assert.True(t, Transient.Retryable())
	assert.True(t, RateLimited.Retryable())
	assert.False(t, ClientError.Retryable())
	assert.False(t, ParseError.Retryable())
	assert.False(t, Cancelled.Retryable())
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "client_error", ClientError.String())
	assert.Equal(t, "parse_error", ParseError.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", Category(99).String())
}
