// Package metrics exposes recall's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/recall/internal/store"
)

const namespace = "recall"

// Metrics holds every collector and the registry they live in.
type Metrics struct {
	reg *prometheus.Registry

	// pool
	acquireWait prometheus.Histogram
	exhausted   prometheus.Counter
	discarded   prometheus.Counter

	// retrieval
	retrievals      prometheus.Counter
	retrievalErrors prometheus.Counter
	retrievalTime   prometheus.Histogram
	triggers        *prometheus.CounterVec
	results         *prometheus.CounterVec

	// ingest
	ingested     *prometheus.CounterVec
	ingestErrors *prometheus.CounterVec

	// http
	requests *prometheus.CounterVec
}

// New creates a registry with Go runtime, process and recall collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a database connection",
			Buckets:   []float64{0, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Acquire calls that timed out with the pool at its burst cap",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "discarded_total",
			Help:      "Connections closed because they could not be reset",
		}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Retrieve calls",
		}),
		retrievalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "errors_total",
			Help:      "Retrieve calls that failed",
		}),
		retrievalTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieve latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "triggers_total",
			Help:      "Topic activations by entity",
		}, []string{"entity"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results_total",
			Help:      "Insights returned by tier",
		}, []string{"layer"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "insights_total",
			Help:      "Insights stored by type",
		}, []string{"type"}),
		ingestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Ingest calls that failed by type",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.acquireWait, m.exhausted, m.discarded,
		m.retrievals, m.retrievalErrors, m.retrievalTime, m.triggers, m.results,
		m.ingested, m.ingestErrors,
		m.requests,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WatchPool registers gauges that read pool occupancy at scrape time.
func (m *Metrics) WatchPool(stats func() store.PoolStats) {
	if m == nil {
		return
	}
	gauge := func(name, help string, read func(store.PoolStats) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}
	m.reg.MustRegister(
		gauge("open_connections", "Open connections, idle and leased", func(s store.PoolStats) int { return s.Open }),
		gauge("idle_connections", "Idle connections", func(s store.PoolStats) int { return s.Idle }),
		gauge("in_use_connections", "Leased connections", func(s store.PoolStats) int { return s.InUse }),
		gauge("max_connections", "Burst cap", func(s store.PoolStats) int { return s.MaxOpen }),
	)
}

// ObserveAcquire implements store.Observer.
func (m *Metrics) ObserveAcquire(wait time.Duration) {
	if m == nil {
		return
	}
	m.acquireWait.Observe(wait.Seconds())
}

// ObserveExhausted implements store.Observer.
func (m *Metrics) ObserveExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}

// ObserveDiscard implements store.Observer.
func (m *Metrics) ObserveDiscard() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

// ObserveRetrieval records one Retrieve call.
func (m *Metrics) ObserveRetrieval(d time.Duration, entities []string, surface, mid, deep int, err error) {
	if m == nil {
		return
	}
	m.retrievals.Inc()
	m.retrievalTime.Observe(d.Seconds())
	if err != nil {
		m.retrievalErrors.Inc()
		return
	}
	for _, e := range entities {
		m.triggers.WithLabelValues(e).Inc()
	}
	m.results.WithLabelValues("surface").Add(float64(surface))
	m.results.WithLabelValues("mid").Add(float64(mid))
	m.results.WithLabelValues("deep").Add(float64(deep))
}

// ObserveIngest records one Ingest call.
func (m *Metrics) ObserveIngest(insightType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ingestErrors.WithLabelValues(insightType).Inc()
		return
	}
	m.ingested.WithLabelValues(insightType).Inc()
}

// ObserveRequest records one HTTP response.
func (m *Metrics) ObserveRequest(route, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, code).Inc()
}

var _ store.Observer = (*Metrics)(nil)
