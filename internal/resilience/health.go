package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/observability"
)

// Default breaker parameters.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// HealthConfig configures the per-provider circuit breakers.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failed calls that opens
	// the breaker.
	FailureThreshold int

	// Cooldown is how long an open breaker rejects calls before allowing a
	// single half-open probe.
	Cooldown time.Duration
}

func (c *HealthConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
}

type healthRecord struct {
	state          domain.BreakerState
	consecutive    int
	totalFailures  int64
	totalSuccesses int64
	lastTransition time.Time
	probeInFlight  bool
}

// HealthStore holds one circuit breaker per provider. It is owned by the
// engine rather than being process-global, so tests build a fresh store.
// It is safe for concurrent use.
type HealthStore struct {
	mu      sync.Mutex
	cfg     HealthConfig
	records map[domain.SourceType]*healthRecord
	now     func() time.Time
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// HealthOption customizes a HealthStore.
type HealthOption func(*HealthStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) HealthOption {
	return func(h *HealthStore) { h.now = now }
}

// WithHealthLogger sets the logger used for breaker transitions.
func WithHealthLogger(logger zerolog.Logger) HealthOption {
	return func(h *HealthStore) {
		h.logger = logger.With().Str("component", "health_store").Logger()
	}
}

// WithHealthMetrics records breaker transitions.
func WithHealthMetrics(m *observability.Metrics) HealthOption {
	return func(h *HealthStore) { h.metrics = m }
}

// NewHealthStore creates an empty store. Providers start closed.
func NewHealthStore(cfg HealthConfig, opts ...HealthOption) *HealthStore {
	cfg.applyDefaults()
	h := &HealthStore{
		cfg:     cfg,
		records: make(map[domain.SourceType]*healthRecord),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// record returns the record for source, creating it closed. Caller holds mu.
func (h *HealthStore) record(source domain.SourceType) *healthRecord {
	rec, ok := h.records[source]
	if !ok {
		rec = &healthRecord{state: domain.BreakerClosed, lastTransition: h.now()}
		h.records[source] = rec
	}
	return rec
}

// Allow reports whether a call to source may proceed. An open breaker whose
// cooldown has elapsed moves to half-open and admits exactly one probe;
// further calls are rejected until the probe reports an outcome.
func (h *HealthStore) Allow(source domain.SourceType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.record(source)
	switch rec.state {
	case domain.BreakerClosed:
		return true
	case domain.BreakerOpen:
		if h.now().Sub(rec.lastTransition) < h.cfg.Cooldown {
			return false
		}
		h.transition(source, rec, domain.BreakerHalfOpen)
		rec.probeInFlight = true
		return true
	default:
		if rec.probeInFlight {
			return false
		}
		rec.probeInFlight = true
		return true
	}
}

// RecordSuccess resets the failure counter and closes the breaker.
func (h *HealthStore) RecordSuccess(source domain.SourceType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.record(source)
	rec.totalSuccesses++
	rec.consecutive = 0
	rec.probeInFlight = false
	if rec.state != domain.BreakerClosed {
		h.transition(source, rec, domain.BreakerClosed)
	}
}

// RecordFailure counts a failed call. A failed half-open probe re-opens the
// breaker; reaching FailureThreshold consecutive failures opens it.
func (h *HealthStore) RecordFailure(source domain.SourceType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.record(source)
	rec.totalFailures++
	rec.consecutive++
	rec.probeInFlight = false

	switch rec.state {
	case domain.BreakerHalfOpen:
		h.transition(source, rec, domain.BreakerOpen)
	case domain.BreakerClosed:
		if rec.consecutive >= h.cfg.FailureThreshold {
			h.transition(source, rec, domain.BreakerOpen)
		}
	}
}

// Release frees an admitted half-open probe that ended without an outcome,
// for example because the caller cancelled.
func (h *HealthStore) Release(source domain.SourceType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec, ok := h.records[source]; ok {
		rec.probeInFlight = false
	}
}

// State returns the breaker state of source.
func (h *HealthStore) State(source domain.SourceType) domain.BreakerState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec, ok := h.records[source]; ok {
		return rec.state
	}
	return domain.BreakerClosed
}

// Health returns the current health of source.
func (h *HealthStore) Health(source domain.SourceType) domain.ProviderHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot(source, h.record(source))
}

// Snapshot returns the health of every provider seen so far, in priority order.
func (h *HealthStore) Snapshot() []domain.ProviderHealth {
	h.mu.Lock()
	out := make([]domain.ProviderHealth, 0, len(h.records))
	for source, rec := range h.records {
		out = append(out, snapshot(source, rec))
	}
	h.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Source.Priority(), out[j].Source.Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// Reset closes the breaker of source and clears its counters.
func (h *HealthStore) Reset(source domain.SourceType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.records, source)
}

func snapshot(source domain.SourceType, rec *healthRecord) domain.ProviderHealth {
	return domain.ProviderHealth{
		Source:              source,
		State:               rec.state,
		ConsecutiveFailures: rec.consecutive,
		TotalFailures:       rec.totalFailures,
		TotalSuccesses:      rec.totalSuccesses,
		LastTransition:      rec.lastTransition,
	}
}

// transition moves rec to state. Caller holds mu.
func (h *HealthStore) transition(source domain.SourceType, rec *healthRecord, state domain.BreakerState) {
	from := rec.state
	rec.state = state
	rec.lastTransition = h.now()

	h.logger.Warn().
		Str("source", string(source)).
		Str("from", string(from)).
		Str("to", string(state)).
		Int("consecutive_failures", rec.consecutive).
		Msg("circuit breaker transition")

	h.metrics.RecordBreakerTransition(string(source), string(state), gaugeValue(state))
}

func gaugeValue(state domain.BreakerState) float64 {
	switch state {
	case domain.BreakerOpen:
		return observability.BreakerStateOpen
	case domain.BreakerHalfOpen:
		return observability.BreakerStateHalfOpen
	default:
		return observability.BreakerStateClosed
	}
}
