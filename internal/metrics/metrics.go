// Package metrics exposes Prometheus instruments for the API and worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "delat"

// Metrics holds every instrument on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RecordsCreated     *prometheus.CounterVec
	RecordsDeleted     *prometheus.CounterVec
	DuplicateChecks    *prometheus.CounterVec
	SnapshotDuration   prometheus.Histogram
	EventsPublished    *prometheus.CounterVec
	EventsConsumed     *prometheus.CounterVec
	RecurringCreated   *prometheus.CounterVec
	HouseholdImbalance *prometheus.GaugeVec
}

// New registers the instruments plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RecordsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Stored expenses, incomes and settlements.",
		}, []string{"kind"}),
		RecordsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_deleted_total",
			Help:      "Deleted expenses, incomes and settlements.",
		}, []string{"kind"}),
		DuplicateChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_checks_total",
			Help:      "Duplicate checks by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "balance_snapshot_duration_seconds",
			Help:      "Time spent loading records and computing a balance snapshot.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amqp",
			Name:      "events_published_total",
			Help:      "Record-changed events by publish outcome.",
		}, []string{"outcome"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "amqp",
			Name:      "events_consumed_total",
			Help:      "Record-changed events by handling outcome.",
		}, []string{"outcome"}),
		RecurringCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_occurrences_total",
			Help:      "Occurrences generated from repeating records.",
		}, []string{"kind"}),
		HouseholdImbalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "household_open_balance",
			Help:      "Sum of positive member balances after the last recomputation, in major units.",
		}, []string{"group"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.RecordsCreated,
		m.RecordsDeleted,
		m.DuplicateChecks,
		m.SnapshotDuration,
		m.EventsPublished,
		m.EventsConsumed,
		m.RecurringCreated,
		m.HouseholdImbalance,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
