package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestHealthStore_Defaults(t *testing.T) {
	h := NewHealthStore(HealthConfig{})
	assert.Equal(t, DefaultFailureThreshold, h.cfg.FailureThreshold)
	assert.Equal(t, DefaultCooldown, h.cfg.Cooldown)
	assert.Equal(t, domain.BreakerClosed, h.State(domain.SourceTypeOpenAlex))
	assert.True(t, h.Allow(domain.SourceTypeOpenAlex))
}

func TestHealthStore_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	h := NewHealthStore(HealthConfig{FailureThreshold: 5, Cooldown: time.Minute}, WithClock(clock.Now))
	src := domain.SourceTypePubMed

	for i := 0; i < 4; i++ {
		require.True(t, h.Allow(src))
		h.RecordFailure(src)
	}
	assert.Equal(t, domain.BreakerClosed, h.State(src))

	require.True(t, h.Allow(src))
	h.RecordFailure(src)
	assert.Equal(t, domain.BreakerOpen, h.State(src))
	assert.False(t, h.Allow(src))

	health := h.Health(src)
	assert.Equal(t, 5, health.ConsecutiveFailures)
	assert.Equal(t, int64(5), health.TotalFailures)
	assert.Equal(t, clock.Now(), health.LastTransition)
}

func TestHealthStore_SuccessResetsCounter(t *testing.T) {
	h := NewHealthStore(HealthConfig{FailureThreshold: 3})
	src := domain.SourceTypeArXiv

	h.RecordFailure(src)
	h.RecordFailure(src)
	h.RecordSuccess(src)
	h.RecordFailure(src)
	h.RecordFailure(src)

	assert.Equal(t, domain.BreakerClosed, h.State(src))
	assert.Equal(t, 2, h.Health(src).ConsecutiveFailures)
	assert.Equal(t, int64(1), h.Health(src).TotalSuccesses)
}

func TestHealthStore_HalfOpenProbe(t *testing.T) {
	clock := newFakeClock()
	h := NewHealthStore(HealthConfig{FailureThreshold: 2, Cooldown: time.Minute}, WithClock(clock.Now))
	src := domain.SourceTypeScopus

	h.RecordFailure(src)
	h.RecordFailure(src)
	require.Equal(t, domain.BreakerOpen, h.State(src))

	clock.Advance(59 * time.Second)
	assert.False(t, h.Allow(src), "still cooling down")

	clock.Advance(time.Second)
	assert.True(t, h.Allow(src), "first call after cooldown is the probe")
	assert.Equal(t, domain.BreakerHalfOpen, h.State(src))
	assert.False(t, h.Allow(src), "only one probe at a time")

	t.Run("probe success closes", func(t *testing.T) {
		h.RecordSuccess(src)
		assert.Equal(t, domain.BreakerClosed, h.State(src))
		assert.True(t, h.Allow(src))
		assert.Equal(t, 0, h.Health(src).ConsecutiveFailures)
	})
}

func TestHealthStore_FailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	h := NewHealthStore(HealthConfig{FailureThreshold: 1, Cooldown: 10 * time.Second}, WithClock(clock.Now))
	src := domain.SourceTypeBioRxiv

	h.RecordFailure(src)
	clock.Advance(10 * time.Second)
	require.True(t, h.Allow(src))

	h.RecordFailure(src)
	assert.Equal(t, domain.BreakerOpen, h.State(src))
	assert.False(t, h.Allow(src), "cooldown restarts from the failed probe")

	clock.Advance(10 * time.Second)
	assert.True(t, h.Allow(src))
}

func TestHealthStore_ReleaseFreesProbe(t *testing.T) {
	clock := newFakeClock()
	h := NewHealthStore(HealthConfig{FailureThreshold: 1, Cooldown: time.Second}, WithClock(clock.Now))
	src := domain.SourceTypeOpenAlex

	h.RecordFailure(src)
	clock.Advance(time.Second)
	require.True(t, h.Allow(src))
	require.False(t, h.Allow(src))

	h.Release(src)
	assert.True(t, h.Allow(src))
	assert.Equal(t, domain.BreakerHalfOpen, h.State(src))
}

func TestHealthStore_SnapshotOrdersByPriority(t *testing.T) {
	h := NewHealthStore(HealthConfig{})
	h.RecordSuccess(domain.SourceTypeScopus)
	h.RecordFailure(domain.SourceTypeArXiv)
	h.RecordSuccess(domain.SourceTypeOpenAlex)

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, domain.SourceTypeOpenAlex, snap[0].Source)
	assert.Equal(t, domain.SourceTypeArXiv, snap[1].Source)
	assert.Equal(t, domain.SourceTypeScopus, snap[2].Source)
	assert.Equal(t, int64(1), snap[1].TotalFailures)
}

func TestHealthStore_Reset(t *testing.T) {
	h := NewHealthStore(HealthConfig{FailureThreshold: 1})
	h.RecordFailure(domain.SourceTypePubMed)
	require.Equal(t, domain.BreakerOpen, h.State(domain.SourceTypePubMed))

	h.Reset(domain.SourceTypePubMed)
	assert.Equal(t, domain.BreakerClosed, h.State(domain.SourceTypePubMed))
	assert.True(t, h.Allow(domain.SourceTypePubMed))
}

func TestHealthStore_ConcurrentFailuresAreNotLost(t *testing.T) {
	h := NewHealthStore(HealthConfig{FailureThreshold: 1000})
	src := domain.SourceTypeSemanticScholar

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.RecordFailure(src)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), h.Health(src).TotalFailures)
	assert.Equal(t, 200, h.Health(src).ConsecutiveFailures)
}

func TestHealthStore_RecordsTransitionMetrics(t *testing.T) {
	m := observability.NewMetrics("test_resilience_health")
	h := NewHealthStore(HealthConfig{FailureThreshold: 1}, WithHealthMetrics(m))

	h.RecordFailure(domain.SourceTypeArXiv)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("arxiv", "open")))
	assert.Equal(t, float64(observability.BreakerStateOpen), testutil.ToFloat64(m.BreakerState.WithLabelValues("arxiv")))
}
