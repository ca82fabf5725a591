// Package metrics holds the Prometheus collectors of the marketplace.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ApplicationsSubmitted prometheus.Counter
	StatusTransitions     *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
	PostingsClosed        prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ApplicationsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_applications_submitted_total",
			Help: "Total number of submitted applications.",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_application_transitions_total",
			Help: "Total number of application status transitions by target status.",
		}, []string{"status"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_notifications_failed_total",
			Help: "Total number of notifications that could not be dispatched.",
		}, []string{"kind"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "Total number of HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		PostingsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_postings_expired_total",
			Help: "Total number of postings closed after their deadline.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.ApplicationsSubmitted,
		m.StatusTransitions,
		m.NotificationsFailed,
		m.HTTPRequests,
		m.PostingsClosed,
	)
	return m
}

func (m *Metrics) ApplicationSubmitted() {
	m.ApplicationsSubmitted.Inc()
}

func (m *Metrics) StatusChanged(status models.Status) {
	m.StatusTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	m.NotificationsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) Request(method, route string, code int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ExpiredPostings(n int64) {
	m.PostingsClosed.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
