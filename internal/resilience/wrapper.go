package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

// Default per-call timeouts.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultFastTimeout = 5 * time.Second
)

// Config configures a Wrapper.
type Config struct {
	// Timeout bounds each attempt of a provider call.
	Timeout time.Duration

	// FastTimeout replaces Timeout when the search runs in fast mode.
	FastTimeout time.Duration

	// Retry bounds retries of recoverable failures.
	Retry RetryPolicy
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.FastTimeout <= 0 {
		c.FastTimeout = DefaultFastTimeout
	}
	if c.FastTimeout > c.Timeout {
		c.FastTimeout = c.Timeout
	}
	c.Retry.applyDefaults()
}

// PaperCall is one provider call the wrapper may run several times.
type PaperCall func(ctx context.Context) ([]*domain.Paper, error)

// Wrapper composes, in order, the breaker gate, the per-attempt timeout and
// retry with backoff around a provider call, and reports every outcome to
// the HealthStore. It is safe for concurrent use.
type Wrapper struct {
	cfg     Config
	health  *HealthStore
	logger  zerolog.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Wrapper.
type Option func(*Wrapper)

// WithLogger sets the wrapper logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Wrapper) {
		w.logger = logger.With().Str("component", "resilience").Logger()
	}
}

// WithMetrics records call outcomes and retries.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Wrapper) { w.metrics = m }
}

// WithSleep overrides how the wrapper waits between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Wrapper) { w.sleep = sleep }
}

// NewWrapper creates a wrapper reporting to health.
func NewWrapper(cfg Config, health *HealthStore, opts ...Option) *Wrapper {
	cfg.applyDefaults()
	w := &Wrapper{
		cfg:    cfg,
		health: health,
		logger: zerolog.Nop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Health returns the store the wrapper reports to.
func (w *Wrapper) Health() *HealthStore {
	return w.health
}

// Timeout returns the per-attempt timeout for the given mode.
func (w *Wrapper) Timeout(fast bool) time.Duration {
	if fast {
		return w.cfg.FastTimeout
	}
	return w.cfg.Timeout
}

// Call runs fn for source.
//
// When the breaker is open Call returns an error wrapping
// domain.ErrCircuitOpen without invoking fn. Each attempt runs under its own
// deadline; an expired deadline is a recoverable failure. Recoverable
// failures are retried up to the policy bound, waiting the provider-declared
// Retry-After for rate limits. Client and parse errors are returned at once.
// Caller cancellation stops the loop and leaves the breaker untouched.
func (w *Wrapper) Call(ctx context.Context, source domain.SourceType, fast bool, fn PaperCall) ([]*domain.Paper, error) {
	name := string(source)
	start := time.Now()

	if !w.health.Allow(source) {
		w.metrics.RecordProviderCall(name, "skipped", 0)
		w.logger.Debug().Str("source", name).Msg("breaker open, skipping provider")
		return nil, fmt.Errorf("%s: %w", name, domain.ErrCircuitOpen)
	}

	timeout := w.Timeout(fast)
	policy := w.cfg.Retry

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		papers, err := w.attempt(ctx, timeout, fn)
		if err == nil {
			w.health.RecordSuccess(source)
			w.metrics.RecordProviderCall(name, "success", time.Since(start).Seconds())
			return papers, nil
		}

		if ctx.Err() != nil {
			w.health.Release(source)
			w.metrics.RecordProviderCall(name, "cancelled", time.Since(start).Seconds())
			return nil, ctx.Err()
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s: call timed out after %s: %w", name, timeout, err)
		}
		lastErr = err

		category := Classify(err)
		if category == RateLimited {
			w.metrics.RecordProviderRateLimited(name)
		}
		if !category.Retryable() || attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt, err)
		w.metrics.RecordProviderRetry(name, category.String())
		w.logger.Debug().
			Err(err).
			Str("source", name).
			Int("attempt", attempt+1).
			Int("max_attempts", policy.MaxAttempts).
			Str("category", category.String()).
			Dur("backoff", delay).
			Msg("retrying provider call")

		if err := w.sleep(ctx, delay); err != nil {
			w.health.Release(source)
			w.metrics.RecordProviderCall(name, "cancelled", time.Since(start).Seconds())
			return nil, err
		}
	}

	w.health.RecordFailure(source)
	w.metrics.RecordProviderCall(name, "failure", time.Since(start).Seconds())
	w.logger.Warn().
		Err(lastErr).
		Str("source", name).
		Str("category", Classify(lastErr).String()).
		Msg("provider call failed")
	return nil, lastErr
}

func (w *Wrapper) attempt(ctx context.Context, timeout time.Duration, fn PaperCall) ([]*domain.Paper, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
