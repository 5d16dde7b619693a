// Package metrics exposes Prometheus instrumentation for the proxy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the proxy.
type Collector struct {
	Registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	sessionDuration prometheus.Histogram
	bytesForwarded  *prometheus.CounterVec
	framesDecoded   *prometheus.CounterVec
	decodeWarnings  prometheus.Counter
	sslHandshakes   *prometheus.CounterVec
	upstreamHealthy prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry. Safe to call
// multiple times (e.g. in tests) — each call creates an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgproxy_sessions_active",
			Help: "Number of proxied client sessions currently open",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgproxy_sessions_total",
			Help: "Total number of proxied client sessions accepted",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgproxy_session_duration_seconds",
			Help:    "Duration of proxied sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 18),
		}),
		bytesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgproxy_bytes_forwarded_total",
			Help: "Bytes forwarded per direction",
		}, []string{"direction"}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgproxy_frames_decoded_total",
			Help: "Protocol frames decoded, by message name and direction",
		}, []string{"direction", "message"}),
		decodeWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgproxy_decode_warnings_total",
			Help: "Frames that failed semantic decoding and were forwarded raw",
		}),
		sslHandshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgproxy_ssl_handshakes_total",
			Help: "SSL negotiation outcomes",
		}, []string{"outcome"}),
		upstreamHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgproxy_upstream_healthy",
			Help: "Whether the upstream server accepts TCP connections (1=yes)",
		}),
	}

	reg.MustRegister(
		c.sessionsActive,
		c.sessionsTotal,
		c.sessionDuration,
		c.bytesForwarded,
		c.framesDecoded,
		c.decodeWarnings,
		c.sslHandshakes,
		c.upstreamHealthy,
	)
	return c
}

// SessionOpened records an accepted client session.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
	c.sessionsTotal.Inc()
}

// SessionClosed records a finished session and its duration.
func (c *Collector) SessionClosed(d time.Duration) {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
	c.sessionDuration.Observe(d.Seconds())
}

// BytesForwarded counts forwarded payload bytes for one direction
// ("client_to_upstream" or "upstream_to_client").
func (c *Collector) BytesForwarded(direction string, n int) {
	if c == nil {
		return
	}
	c.bytesForwarded.WithLabelValues(direction).Add(float64(n))
}

// FrameDecoded counts one decoded frame by message name.
func (c *Collector) FrameDecoded(direction, message string) {
	if c == nil {
		return
	}
	c.framesDecoded.WithLabelValues(direction, message).Inc()
}

// DecodeWarning counts a frame that could not be decoded semantically.
func (c *Collector) DecodeWarning() {
	if c == nil {
		return
	}
	c.decodeWarnings.Inc()
}

// SSLHandshake records a negotiation outcome ("accepted", "rejected",
// "failed").
func (c *Collector) SSLHandshake(outcome string) {
	if c == nil {
		return
	}
	c.sslHandshakes.WithLabelValues(outcome).Inc()
}

// SetUpstreamHealthy publishes the upstream reachability probe result.
func (c *Collector) SetUpstreamHealthy(healthy bool) {
	if c == nil {
		return
	}
	if healthy {
		c.upstreamHealthy.Set(1)
	} else {
		c.upstreamHealthy.Set(0)
	}
}
