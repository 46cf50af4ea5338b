package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the gateway.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	manifestsTotal   *prometheus.CounterVec
	keyDeliveries    prometheus.Counter
	licensesTotal    prometheus.Counter
	tokenRejections  prometheus.Counter
	upstreamFailures prometheus.Counter
	cacheLookups     *prometheus.CounterVec
	inflightLoads    prometheus.Gauge
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		manifestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_manifests_served_total",
			Help: "Rewritten manifests served, by kind (master, media, subtitle)",
		}, []string{"kind"}),
		keyDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_key_deliveries_total",
			Help: "AES-128 keys delivered",
		}),
		licensesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_licenses_total",
			Help: "ClearKey licenses issued",
		}),
		tokenRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_token_rejections_total",
			Help: "Requests refused because the streaming token did not validate",
		}),
		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_upstream_failures_total",
			Help: "Origin or object store fetches that failed",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_lookups_total",
			Help: "Cache lookups by cache name and result (hit, miss)",
		}, []string{"cache", "result"}),
		inflightLoads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cache_inflight_loads",
			Help: "Cache populations currently running",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.manifestsTotal,
		m.keyDeliveries,
		m.licensesTotal,
		m.tokenRejections,
		m.upstreamFailures,
		m.cacheLookups,
		m.inflightLoads,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncManifests counts a served manifest of the given kind.
func (m *Metrics) IncManifests(kind string) {
	m.manifestsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncKeyDeliveries() {
	m.keyDeliveries.Inc()
}

func (m *Metrics) IncLicenses() {
	m.licensesTotal.Inc()
}

func (m *Metrics) IncTokenRejections() {
	m.tokenRejections.Inc()
}

func (m *Metrics) IncUpstreamFailures() {
	m.upstreamFailures.Inc()
}

// CacheHit and CacheMiss satisfy cache.Observer.
func (m *Metrics) CacheHit(name string) {
	m.cacheLookups.WithLabelValues(name, "hit").Inc()
}

func (m *Metrics) CacheMiss(name string) {
	m.cacheLookups.WithLabelValues(name, "miss").Inc()
}

// LoadStarted and LoadFinished track in-flight cache populations.
func (m *Metrics) LoadStarted() {
	m.inflightLoads.Inc()
}

func (m *Metrics) LoadFinished() {
	m.inflightLoads.Dec()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
