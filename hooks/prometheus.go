package hooks

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Skryldev/image-store/core"
)

// PrometheusMetrics exposes store activity as Prometheus collectors.
type PrometheusMetrics struct {
	opDuration *prometheus.HistogramVec
	opErrors   *prometheus.CounterVec
	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter
	throughput prometheus.Counter
}

// MustNewPrometheusMetrics registers the collectors with reg (the default
// registerer when nil). Collectors already registered under the same names
// are reused, so constructing twice against one registry is safe.
func MustNewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagestore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations and pipeline steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagestore",
			Name:      "operation_errors_total",
			Help:      "Failed store operations by error category.",
		}, []string{"op", "category"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagestore",
			Name:      "variant_cache_hits_total",
			Help:      "Variant requests served from an existing cache file.",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagestore",
			Name:      "variant_cache_misses_total",
			Help:      "Variant requests that required resampling.",
		}),
		throughput: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagestore",
			Name:      "written_bytes_total",
			Help:      "Bytes written for originals and variants.",
		}),
	}
	m.opDuration = register(reg, m.opDuration)
	m.opErrors = register(reg, m.opErrors)
	m.cacheHits = register(reg, m.cacheHits)
	m.cacheMiss = register(reg, m.cacheMiss)
	m.throughput = register(reg, m.throughput)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *PrometheusMetrics) RecordOperation(op string, d time.Duration) {
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordCacheHit()  { m.cacheHits.Inc() }
func (m *PrometheusMetrics) RecordCacheMiss() { m.cacheMiss.Inc() }

func (m *PrometheusMetrics) RecordThroughput(bytes int64) {
	if bytes > 0 {
		m.throughput.Add(float64(bytes))
	}
}

func (m *PrometheusMetrics) RecordError(op string, category string) {
	m.opErrors.WithLabelValues(op, category).Inc()
}

// Multi fans observations out to several collectors.
type Multi []core.MetricsCollector

func (m Multi) RecordOperation(op string, d time.Duration) {
	for _, c := range m {
		c.RecordOperation(op, d)
	}
}

func (m Multi) RecordCacheHit() {
	for _, c := range m {
		c.RecordCacheHit()
	}
}

func (m Multi) RecordCacheMiss() {
	for _, c := range m {
		c.RecordCacheMiss()
	}
}

func (m Multi) RecordThroughput(bytes int64) {
	for _, c := range m {
		c.RecordThroughput(bytes)
	}
}

func (m Multi) RecordError(op string, category string) {
	for _, c := range m {
		c.RecordError(op, category)
	}
}

var (
	_ core.MetricsCollector = (*PrometheusMetrics)(nil)
	_ core.MetricsCollector = Multi(nil)
)
