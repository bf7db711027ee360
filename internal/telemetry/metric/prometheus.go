package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/votifier-go/internal/core/domain"
)

const namespace = "votifier"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionsAccepted    prometheus.Counter
	ConnectionsActive      prometheus.Gauge
	ConnectionsRateLimited prometheus.Counter

	// Vote metrics
	VotesDelivered   *prometheus.CounterVec
	VotesDropped     prometheus.Counter
	VotesRejected    *prometheus.CounterVec
	SinkFailures     prometheus.Counter
	DecodeDuration   *prometheus.HistogramVec
	GreetingFailures prometheus.Counter

	// Keystore metrics
	KeystoreReloads *prometheus.CounterVec
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler serves the process-wide registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with runtime collectors and all
// application metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		registry: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted vote connections.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of vote connections currently open.",
		}),
		ConnectionsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rate_limited_total",
			Help:      "Connections closed because the remote address exceeded its rate.",
		}),
		VotesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_delivered_total",
			Help:      "Votes handed to the host sinks, by protocol.",
		}, []string{"protocol"}),
		VotesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_dropped_total",
			Help:      "Decoded votes dropped because the dispatch queue was full or closed.",
		}),
		VotesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections that ended without a vote, by error kind.",
		}, []string{"kind"}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Errors returned by vote sinks.",
		}),
		DecodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time from accept to a terminal session state, by protocol.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"protocol"}),
		GreetingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "greeting_failures_total",
			Help:      "Connections where the greeting could not be written.",
		}),
		KeystoreReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystore_reloads_total",
			Help:      "Keystore snapshot reloads, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.ConnectionsRateLimited,
		r.VotesDelivered,
		r.VotesDropped,
		r.VotesRejected,
		r.SinkFailures,
		r.DecodeDuration,
		r.GreetingFailures,
		r.KeystoreReloads,
	)
	return r
}

// Registerer exposes the underlying registry for extra collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ConnectionOpened records an accepted connection.
func (r *Registry) ConnectionOpened() {
	r.ConnectionsAccepted.Inc()
	r.ConnectionsActive.Inc()
}

// ConnectionClosed records a connection that finished.
func (r *Registry) ConnectionClosed() {
	r.ConnectionsActive.Dec()
}

// RateLimited records a connection refused by the rate limiter.
func (r *Registry) RateLimited() {
	r.ConnectionsRateLimited.Inc()
}

// GreetingFailed records a greeting write error.
func (r *Registry) GreetingFailed() {
	r.GreetingFailures.Inc()
}

// ObserveDecode records the time a session took to reach a terminal state.
func (r *Registry) ObserveDecode(version domain.ProtocolVersion, seconds float64) {
	r.DecodeDuration.WithLabelValues(version.String()).Observe(seconds)
}

// VoteDelivered implements dispatch.Recorder.
func (r *Registry) VoteDelivered(version domain.ProtocolVersion) {
	r.VotesDelivered.WithLabelValues(version.String()).Inc()
}

// VoteDropped implements dispatch.Recorder.
func (r *Registry) VoteDropped() {
	r.VotesDropped.Inc()
}

// SinkFailed implements dispatch.Recorder.
func (r *Registry) SinkFailed() {
	r.SinkFailures.Inc()
}

// ConnectionRejected implements dispatch.Recorder.
func (r *Registry) ConnectionRejected(kind domain.ErrorKind) {
	r.VotesRejected.WithLabelValues(kind.String()).Inc()
}

// KeystoreReloaded records a reload attempt.
func (r *Registry) KeystoreReloaded(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.KeystoreReloads.WithLabelValues(result).Inc()
}
