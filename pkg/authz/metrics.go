package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the decision path.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	ResolveDuration  prometheus.Histogram
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	BatchSize        prometheus.Histogram
}

// NewMetrics creates and registers the decision metrics. A nil
// registry uses the default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_decisions_total",
				Help: "Total number of permission decisions",
			},
			[]string{"outcome", "reason"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_resolve_duration_seconds",
				Help:    "Time spent resolving a single permission check",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_decision_cache_hits_total",
				Help: "Total number of decision cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_decision_cache_misses_total",
				Help: "Total number of decision cache misses",
			},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_check_batch_size",
				Help:    "Number of checks per batch request",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
	}

	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	registry.MustRegister(
		m.DecisionsTotal,
		m.ResolveDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BatchSize,
	)
	return m
}

func (m *Metrics) recordDecision(d Decision, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	m.DecisionsTotal.WithLabelValues(outcome, d.Reason.String()).Inc()
	m.ResolveDuration.Observe(took.Seconds())
}

func (m *Metrics) recordCacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) recordCacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) recordBatch(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}
