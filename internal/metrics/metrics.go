// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts the auth events worth alerting on.
type Collector struct {
	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	refreshes     prometheus.Counter
	csrfRejected  prometheus.Counter
	httpStatus    *prometheus.CounterVec
	latency       prometheus.Histogram
}

// NewCollector registers the metrics on reg and returns the collector.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securestack_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securestack_registrations_total",
			Help: "Accounts created.",
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securestack_token_refreshes_total",
			Help: "Access tokens minted from refresh tokens.",
		}),
		csrfRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securestack_csrf_rejected_total",
			Help: "Requests rejected by the CSRF guard.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securestack_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "securestack_request_duration_seconds",
			Help:    "Request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.refreshes,
		c.csrfRejected,
		c.httpStatus,
		c.latency,
	)

	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

func (c *Collector) RecordTokenRefresh() {
	c.refreshes.Inc()
}

func (c *Collector) RecordCSRFRejection() {
	c.csrfRejected.Inc()
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordLatency(d time.Duration) {
	c.latency.Observe(d.Seconds())
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
