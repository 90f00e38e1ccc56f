// Package metrics exposes Prometheus counters for gate verifications, sign-in
// attempts and the client registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessiongate"

// Collector records gate and authentication metrics.
type Collector struct {
	verifications *prometheus.CounterVec
	verifyLatency prometheus.Histogram
	signIns       *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	activeClients prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_verifications_total",
			Help:      "Settled gate mounts by resulting state and staleness.",
		}, []string{"state", "stale"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_verification_seconds",
			Help:      "Time from mount to settled decision.",
			Buckets:   prometheus.DefBuckets,
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_in_attempts_total",
			Help:      "Sign-in attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by status code.",
		}, []string{"status_code"}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_clients",
			Help:      "Clients currently holding a session store.",
		}),
	}

	reg.MustRegister(
		c.verifications,
		c.verifyLatency,
		c.signIns,
		c.httpStatus,
		c.activeClients,
	)

	return c
}

// RecordVerification records one settled gate mount.
func (c *Collector) RecordVerification(state string, stale bool, duration time.Duration) {
	c.verifications.WithLabelValues(state, strconv.FormatBool(stale)).Inc()
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordSignIn records a sign-in attempt.
func (c *Collector) RecordSignIn(method, outcome string) {
	c.signIns.WithLabelValues(method, outcome).Inc()
}

// RecordHTTPStatus records a response status code.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetActiveClients sets the client registry size.
func (c *Collector) SetActiveClients(n int) {
	c.activeClients.Set(float64(n))
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
