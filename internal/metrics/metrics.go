// Package metrics exposes issuance counters on a private Prometheus registry.
//
// A nil *Metrics is valid and records nothing, so callers never branch on
// whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "issuer"

// Request outcomes mirror the three public error kinds plus success.
const (
	OutcomeIssued     = "issued"
	OutcomeBadRequest = "bad_request"
	OutcomeAuthFailed = "auth_failed"
	OutcomeInternal   = "internal"
)

// Certificate outcomes.
const (
	CertIssued  = "issued"
	CertFailed  = "failed"
	CertSkipped = "skipped"
)

type Metrics struct {
	registry      *prometheus.Registry
	tokenRequests *prometheus.CounterVec
	certificates  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Token requests by outcome.",
		}, []string{"outcome"}),
		certificates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ssh_certificates_total",
			Help:      "SSH certificate attempts by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
	}
	reg.MustRegister(
		m.tokenRequests,
		m.certificates,
		m.stageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.tokenRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCertificate(outcome string) {
	if m == nil {
		return
	}
	m.certificates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler serves the exposition format. It returns 404 when m is nil.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
