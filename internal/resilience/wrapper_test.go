package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestWrapper(health *HealthStore, sleeps *recordedSleeps, opts ...Option) *Wrapper {
	cfg := Config{
		Timeout:     time.Second,
		FastTimeout: 50 * time.Millisecond,
		Retry: RetryPolicy{
			MaxAttempts:       3,
			InitialBackoff:    10 * time.Millisecond,
			BackoffMultiplier: 2,
			MaxBackoff:        time.Second,
			MaxRetryAfter:     5 * time.Second,
		},
	}
	opts = append(opts, WithSleep(sleeps.sleep))
	return NewWrapper(cfg, health, opts...)
}

func papers(titles ...string) []*domain.Paper {
	out := make([]*domain.Paper, len(titles))
	for i, title := range titles {
		out[i] = &domain.Paper{Title: title, Source: domain.SourceTypeOpenAlex}
	}
	return out
}

func TestWrapper_Call(t *testing.T) {
	src := domain.SourceTypeOpenAlex

	t.Run("success on first attempt", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		got, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return papers("a"), nil
		})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Empty(t, sleeps.delays)
		assert.Equal(t, int64(1), health.Health(src).TotalSuccesses)
	})

	t.Run("retries transient failures with backoff", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		var calls int32
		got, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, domain.NewExternalAPIError("openalex", http.StatusBadGateway, "bad gateway", nil)
			}
			return papers("a", "b"), nil
		})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, int32(3), calls)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeps.delays)
		assert.Equal(t, 0, health.Health(src).ConsecutiveFailures)
	})

	t.Run("rate limit honours retry-after", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		var calls int32
		_, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, domain.NewRateLimitError("openalex", 2*time.Second)
			}
			return papers("a"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.delays)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		var calls int32
		_, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			atomic.AddInt32(&calls, 1)
			return nil, domain.NewExternalAPIError("openalex", http.StatusUnauthorized, "bad key", nil)
		})
		assert.ErrorIs(t, err, domain.ErrClientRequest)
		assert.Equal(t, int32(1), calls)
		assert.Empty(t, sleeps.delays)
		assert.Equal(t, 1, health.Health(src).ConsecutiveFailures)
	})

	t.Run("parse errors are not retried", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		var calls int32
		_, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			atomic.AddInt32(&calls, 1)
			return nil, domain.NewParseError("openalex", errors.New("bad json"))
		})
		assert.ErrorIs(t, err, domain.ErrParse)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("exhausted retries count one failure", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		var calls int32
		_, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			atomic.AddInt32(&calls, 1)
			return nil, domain.ErrServiceUnavailable
		})
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.Equal(t, int32(3), calls)
		assert.Len(t, sleeps.delays, 2)
		assert.Equal(t, 1, health.Health(src).ConsecutiveFailures)
	})

	t.Run("timeout is recoverable", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		var calls int32
		got, err := w.Call(context.Background(), src, true, func(ctx context.Context) ([]*domain.Paper, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return papers("late"), nil
		})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, int32(2), calls)
	})

	t.Run("fast mode shortens the deadline", func(t *testing.T) {
		w := newTestWrapper(NewHealthStore(HealthConfig{}), &recordedSleeps{})
		assert.Equal(t, 50*time.Millisecond, w.Timeout(true))
		assert.Equal(t, time.Second, w.Timeout(false))
	})

	t.Run("caller cancellation stops without counting a failure", func(t *testing.T) {
		health := NewHealthStore(HealthConfig{})
		sleeps := &recordedSleeps{}
		w := newTestWrapper(health, sleeps)

		ctx, cancel := context.WithCancel(context.Background())
		_, err := w.Call(ctx, src, false, func(ctx context.Context) ([]*domain.Paper, error) {
			cancel()
			return nil, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, health.Health(src).ConsecutiveFailures)
		assert.Empty(t, sleeps.delays)
	})
}

func TestWrapper_BreakerLifecycle(t *testing.T) {
	clock := newFakeClock()
	health := NewHealthStore(HealthConfig{FailureThreshold: 5, Cooldown: time.Minute}, WithClock(clock.Now))
	m := observability.NewMetrics("test_resilience_wrapper")
	w := newTestWrapper(health, &recordedSleeps{}, WithMetrics(m))
	src := domain.SourceTypeSemanticScholar

	var network int32
	failing := func(ctx context.Context) ([]*domain.Paper, error) {
		atomic.AddInt32(&network, 1)
		return nil, domain.NewExternalAPIError("semantic_scholar", http.StatusForbidden, "denied", nil)
	}

	for i := 0; i < 5; i++ {
		_, err := w.Call(context.Background(), src, false, failing)
		require.Error(t, err)
	}
	require.Equal(t, domain.BreakerOpen, health.State(src))
	require.Equal(t, int32(5), network)

	_, err := w.Call(context.Background(), src, false, failing)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, int32(5), network, "open breaker makes no network call")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderCalls.WithLabelValues("semantic_scholar", "skipped")))

	clock.Advance(time.Minute)
	got, err := w.Call(context.Background(), src, false, func(ctx context.Context) ([]*domain.Paper, error) {
		atomic.AddInt32(&network, 1)
		return papers("recovered"), nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, domain.BreakerClosed, health.State(src))
	assert.Equal(t, int32(6), network)
}
