// Package metrics holds the Prometheus instruments the server exposes on
// /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics carries every instrument the server records. Instruments live in a
// private registry so parallel test servers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	TokensIssued      *prometheus.CounterVec
	AuthorizeRequests *prometheus.CounterVec
	Introspections    *prometheus.CounterVec
	Revocations       prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_tokens_issued_total",
		Help: "Tokens issued at the token endpoint, by grant type.",
	}, []string{"grant_type"})

	m.AuthorizeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_authorize_requests_total",
		Help: "Authorization endpoint requests, by outcome.",
	}, []string{"outcome"})

	m.Introspections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_introspections_total",
		Help: "Introspection responses, by active state.",
	}, []string{"active"})

	m.Revocations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_revocations_total",
		Help: "Revocation requests accepted.",
	})

	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency, by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		m.TokensIssued,
		m.AuthorizeRequests,
		m.Introspections,
		m.Revocations,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served request. route is the registered pattern,
// not the raw URL, to keep the label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, elapsed time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordIntrospection counts an introspection response by its active flag.
func (m *Metrics) RecordIntrospection(active bool) {
	m.Introspections.WithLabelValues(strconv.FormatBool(active)).Inc()
}
